// Package report summarises a finished run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/armadaproject/cyclebench/internal/common/util"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

// Outcome is how a run ended.
type Outcome string

const (
	// Every cycle in the range has a result.
	Finished Outcome = "finished"
	// The run ended with a cycle below the highest recorded one still unresolved.
	FinishedStalled Outcome = "finished-stalled"
	// The run was stopped early, by an error policy or a signal, with no gap in the results.
	Stopped Outcome = "stopped"
	// A defect ended the run.
	Errored Outcome = "errored"
)

// CodeSummary is the number of cycles that resolved with one result code.
type CodeSummary struct {
	Code   marker.ResultCode `json:"code"`
	Kind   string            `json:"kind"`
	Group  string            `json:"group"`
	Cycles int64             `json:"cycles"`
}

type Report struct {
	RunID    string           `json:"runId"`
	Driver   string           `json:"driver"`
	Workload string           `json:"workload,omitempty"`
	Cycles   input.CycleRange `json:"cycles"`
	Threads  int              `json:"threads"`
	Started  time.Time        `json:"started"`
	Duration time.Duration    `json:"duration"`
	Outcome  Outcome          `json:"outcome"`
	// Cycles handed to motors.
	Attempted int64 `json:"attempted"`
	// Cycles with a recorded result.
	Resolved int64 `json:"resolved"`
	// Every cycle below this has a result.
	Watermark int64 `json:"watermark"`
	// Lowest cycle without a result, if the run did not complete.
	FirstUnresolved *int64 `json:"firstUnresolved,omitempty"`
	// Cycles by the group of their final result. Successful cycles are counted as "ok".
	ResolvedByGroup map[string]int64 `json:"resolvedByGroup"`
	// Errors handled by group, counting every failed try.
	ErrorsByGroup map[string]int64 `json:"errorsByGroup"`
	Codes         []CodeSummary    `json:"codes"`
	MotorStates   map[string]int64 `json:"motorStates"`
	Error         string           `json:"error,omitempty"`
}

const GroupOK = "ok"

func NewRunID() string {
	return util.NewULID()
}

// Summarise derives the outcome and the per code and per group breakdowns.
func (r *Report) Summarise(status marker.ChunkerStatus, codes map[marker.ResultCode]int64, classifier *errorhandling.Classifier, runErr error) {
	r.Resolved = status.Marked
	r.Watermark = status.Watermark
	if !status.Complete() {
		first := status.Watermark
		r.FirstUnresolved = &first
	}
	switch {
	case runErr != nil:
		r.Outcome = Errored
		r.Error = runErr.Error()
	case status.Complete():
		r.Outcome = Finished
	case status.Stalled():
		r.Outcome = FinishedStalled
	default:
		r.Outcome = Stopped
	}

	kindsByCode := make(map[marker.ResultCode]string)
	groupsByCode := make(map[marker.ResultCode]string)
	if classifier != nil {
		for _, kind := range classifier.Table().Kinds() {
			if kind.Name != errorhandling.RootKind {
				kindsByCode[kind.Code] = kind.Name
			}
		}
		for _, group := range classifier.Groups() {
			if policy, ok := classifier.Policy(group); ok && policy.Code != nil {
				groupsByCode[*policy.Code] = group
			}
		}
	}
	r.ResolvedByGroup = make(map[string]int64)
	r.Codes = make([]CodeSummary, 0, len(codes))
	for _, code := range sortedCodes(codes) {
		summary := CodeSummary{Code: code, Cycles: codes[code]}
		switch code {
		case errorhandling.CodeOK:
			summary.Kind, summary.Group = GroupOK, GroupOK
		case errorhandling.CodeBindFailure:
			summary.Kind, summary.Group = "bind failure", errorhandling.CatchAllGroup
		case errorhandling.CodeUnclassified:
			summary.Kind, summary.Group = "unregistered", errorhandling.CatchAllGroup
		default:
			if group, ok := groupsByCode[code]; ok {
				summary.Kind = "group " + group
				summary.Group = group
			} else if kind, ok := kindsByCode[code]; ok {
				summary.Kind = kind
				summary.Group = classifier.GroupOfKind(kind)
			} else {
				summary.Kind = fmt.Sprintf("code %d", code)
				summary.Group = errorhandling.CatchAllGroup
			}
		}
		r.ResolvedByGroup[summary.Group] += summary.Cycles
		r.Codes = append(r.Codes, summary)
	}
}

func sortedCodes(codes map[marker.ResultCode]int64) []marker.ResultCode {
	keys := maps.Keys(codes)
	slices.Sort(keys)
	return keys
}

// Print writes a human readable summary.
func (r *Report) Print(w io.Writer) error {
	p := message.NewPrinter(language.English)
	sb := util.NewTabbedStringBuilder(0, 4, 2, ' ', 0)
	sb.Writef("Run:\t%s\n", r.RunID)
	sb.Writef("Driver:\t%s\n", r.Driver)
	if r.Workload != "" {
		sb.Writef("Workload:\t%s\n", r.Workload)
	}
	sb.Writef("Cycles:\t%s\n", r.Cycles)
	sb.Writef("Outcome:\t%s\n", r.Outcome)
	sb.Writef("Duration:\t%s\n", r.Duration.Round(time.Millisecond))
	sb.Write(p.Sprintf("Attempted:\t%d\n", r.Attempted))
	sb.Write(p.Sprintf("Resolved:\t%d\n", r.Resolved))
	if seconds := r.Duration.Seconds(); seconds > 0 {
		sb.Write(p.Sprintf("Rate:\t%.1f cycles/s\n", float64(r.Resolved)/seconds))
	}
	sb.Write(p.Sprintf("Watermark:\t%d\n", r.Watermark))
	if r.FirstUnresolved != nil {
		sb.Write(p.Sprintf("First unresolved:\t%d\n", *r.FirstUnresolved))
	}
	if r.Error != "" {
		sb.Writef("Error:\t%s\n", r.Error)
	}
	if len(r.Codes) > 0 {
		sb.Writef("\nCode\tKind\tGroup\tCycles\n")
		for _, code := range r.Codes {
			sb.Write(p.Sprintf("%d\t%s\t%s\t%d\n", code.Code, code.Kind, code.Group, code.Cycles))
		}
	}
	if len(r.ErrorsByGroup) > 0 {
		sb.Writef("\nGroup\tErrors\n")
		for _, group := range errorhandling.SortedGroups(r.ErrorsByGroup) {
			sb.Write(p.Sprintf("%s\t%d\n", group, r.ErrorsByGroup[group]))
		}
	}
	if len(r.MotorStates) > 0 {
		states := maps.Keys(r.MotorStates)
		slices.Sort(states)
		parts := make([]string, len(states))
		for i, state := range states {
			parts[i] = fmt.Sprintf("%s=%d", state, r.MotorStates[state])
		}
		sb.Writef("\nMotors:\t%s\n", strings.Join(parts, " "))
	}
	_, err := io.WriteString(w, sb.String())
	return errors.WithStack(err)
}

// WriteJSON writes the report to dir as <run id>.json and returns the file path.
func (r *Report) WriteJSON(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WithStack(err)
	}
	path := filepath.Join(dir, r.RunID+".json")
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.WithStack(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

func ReadJSON(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "reading report %s", path)
	}
	return &r, nil
}
