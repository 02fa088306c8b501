package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
	}{
		{in: "15m", want: 15 * time.Minute},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "30s", want: 30 * time.Second},
		{in: "12h", want: 12 * time.Hour},
		{in: "2w", want: 14 * 24 * time.Hour},
		{in: "900", want: 900 * time.Second},
		{in: " 15m ", want: 15 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "m", "15x", "fifteen minutes", "-15m", "0d", "1.5h"} {
		in := in
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := ParseDuration(in)
			require.Error(t, err)
		})
	}
}
