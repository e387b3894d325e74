package util

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// TabbedStringBuilder builds tab-aligned text in memory. Writes cannot fail, so unlike a bare
// tabwriter.Writer it returns no errors.
type TabbedStringBuilder struct {
	sb     strings.Builder
	writer *tabwriter.Writer
}

// NewTabbedStringBuilder takes the same parameters as tabwriter.NewWriter.
func NewTabbedStringBuilder(minwidth, tabwidth, padding int, padchar byte, flags uint) *TabbedStringBuilder {
	t := &TabbedStringBuilder{}
	t.writer = tabwriter.NewWriter(&t.sb, minwidth, tabwidth, padding, padchar, flags)
	return t
}

func (t *TabbedStringBuilder) Writef(format string, a ...any) {
	_, _ = fmt.Fprintf(t.writer, format, a...)
}

func (t *TabbedStringBuilder) Write(a ...any) {
	_, _ = fmt.Fprint(t.writer, a...)
}

// WriteRow writes cells separated by tabs and ends the line.
func (t *TabbedStringBuilder) WriteRow(cells ...any) {
	for i, cell := range cells {
		if i > 0 {
			_, _ = t.writer.Write([]byte{'\t'})
		}
		_, _ = fmt.Fprint(t.writer, cell)
	}
	_, _ = t.writer.Write([]byte{'\n'})
}

// String flushes pending cells and returns everything written so far.
func (t *TabbedStringBuilder) String() string {
	_ = t.writer.Flush()
	return t.sb.String()
}
