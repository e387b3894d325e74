package errorhandling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected string
		wantErr  bool
	}{
		"single":             {input: "stop", expected: "stop"},
		"several":            {input: "warn, retry", expected: "warn,retry"},
		"counter alias":      {input: "counter", expected: "count"},
		"code":               {input: "count,code=42", expected: "count,code=42"},
		"upper case":         {input: "WARN", expected: "warn"},
		"empty":              {input: "", wantErr: true},
		"unknown verb":       {input: "explode", wantErr: true},
		"code too large":     {input: "code=128", wantErr: true},
		"code not a number":  {input: "code=x", wantErr: true},
		"ignore and stop":    {input: "ignore,stop", wantErr: true},
		"stop and retry":     {input: "stop,retry", wantErr: true},
		"ignore with a code": {input: "ignore,code=3", expected: "ignore,code=3"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			policy, err := ParsePolicy(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, policy.String())
		})
	}
}

func TestParseErrorSpec(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected string
		wantErr  bool
	}{
		"default":             {input: DefaultErrorSpec, expected: DefaultErrorSpec},
		"arrow form":          {input: "stop,retryable->retry,unverified->stop", expected: "stop;retryable:retry;unverified:stop"},
		"arrow with several":  {input: "retryable->warn+retry", expected: "retryable:warn,retry"},
		"pattern with colon":  {input: "(?i:redis.*):retry", expected: "(?i:redis.*):retry"},
		"trailing separator":  {input: "stop;", expected: "stop"},
		"empty":               {input: " ", wantErr: true},
		"bad verb in entry":   {input: "retryable:maybe", wantErr: true},
		"bad verb arrow form": {input: "retryable->maybe", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			spec, err := ParseErrorSpec(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, spec.String())
		})
	}
}
