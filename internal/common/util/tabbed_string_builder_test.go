package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTabbedStringBuilder(t *testing.T) {
	tests := map[string]struct {
		write    func(*TabbedStringBuilder)
		expected string
	}{
		"writef": {
			write:    func(b *TabbedStringBuilder) { b.Writef("op:\t%s\n", "read") },
			expected: "op: read\n",
		},
		"aligned rows": {
			write: func(b *TabbedStringBuilder) {
				b.Writef("cycle:\t%d\n", 7)
				b.Writef("rate:\t%.1f\t%s\n", 2.5, "cycles/s")
			},
			expected: "cycle: 7\nrate:  2.5 cycles/s\n",
		},
		"write row": {
			write: func(b *TabbedStringBuilder) {
				b.WriteRow("kind", "code")
				b.WriteRow("timeout", 10)
			},
			expected: "kind    code\ntimeout 10\n",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b := NewTabbedStringBuilder(1, 1, 1, ' ', 0)
			tc.write(b)
			assert.Equal(t, tc.expected, b.String())
		})
	}
}
