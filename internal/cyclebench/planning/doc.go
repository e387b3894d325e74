/*
Package planning turns a weighted list of op templates into a fixed, repeating order of selection.

BuildSchedule drains one bucket of tokens per element in round-robin order. For ratios A:5, B:3, C:1 the
schedule is

	A B C A B A B A A

High-ratio elements are interleaved rather than clustered, although the result is not the most even interleaving
possible. The order is kept as is so that runs configured with the same ratios always select the same ops for the
same cycles.

An OpSequence pairs the schedule with its elements. Select(cycle) is a constant time lookup with no hidden state,
so any worker can resolve any cycle without coordination.
*/
package planning
