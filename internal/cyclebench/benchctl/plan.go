package benchctl

import (
	"io"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/util"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
	"github.com/armadaproject/cyclebench/internal/cyclebench/workload"
)

// Plan prints the ops of a workload with their share of the schedule, followed by the op selected for each cycle
// in cycles. An empty range prints one full pass of the schedule.
func (a *App) Plan(workloadPath string, cycles input.CycleRange) error {
	w, err := workload.Load(workloadPath)
	if err != nil {
		return err
	}
	sequence, err := w.Sequence()
	if err != nil {
		return err
	}
	if cycles.Count() == 0 {
		cycles = input.CycleRange{Min: 0, Max: int64(sequence.Len())}
	}

	sb := util.NewTabbedStringBuilder(0, 4, 2, ' ', 0)
	sb.Writef("Op\tRatio\tPer pass\n")
	counts := sequence.Counts()
	for i, template := range sequence.Elements() {
		sb.Writef("%s\t%d\t%d/%d\n", template.Name, template.Ratio, counts[i], sequence.Len())
	}
	sb.Writef("\nCycle\tOp\n")
	for cycle := cycles.Min; cycle < cycles.Max; cycle++ {
		sb.Writef("%d\t%s\n", cycle, sequence.Select(cycle).Name)
	}
	_, err = io.WriteString(a.Out, sb.String())
	return errors.WithStack(err)
}
