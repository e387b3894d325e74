/*
Package errorhandling maps arbitrary backend errors to a small number of named groups, and each group to a
policy describing what a worker should do about it.

Classification has two tables. The kind table is static: every known failure kind is registered once with its
Go type (or a sentinel value), the kind it specialises, and a stable result code. Building the table checks every
declared parent against the real type hierarchy, so a kind can only specialise an interface its type implements.
The group table is mutable: it lists kinds per group, and a kind listed in a group brings all of its registered
descendants with it. Anything that matches no group lands in the catch-all group.

At runtime Classify strips annotation layers added by github.com/pkg/errors or fmt.Errorf, looks the error up
directly, then tries its immediate cause once. There is no deep walk of the error chain.

Policies are configured with a compact string, for example

	retryable:warn,retry;unverified:stop;redis\..*:count,code=99;stop

where the last bare entry applies to the catch-all group.
*/
package errorhandling
