package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronSpec(t *testing.T) {
	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{expr: "1 0 0", want: "1 0 0"},
		{expr: "0 * *", want: "0 * *"},
		{expr: "CRON_TZ=UTC 30 15 4", want: "CRON_TZ=UTC 30 15 4"},
		{expr: "0,30 * *", wantErr: true},
		{expr: "*/2 * *", wantErr: true},
		{expr: "61 * *", wantErr: true},
		{expr: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			spec, err := ParseCronSpec(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.expr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.String())
		})
	}
}

func TestCronSpecNextAndMatches(t *testing.T) {
	spec, err := ParseCronSpec("CRON_TZ=UTC 1 0 0")
	require.NoError(t, err)
	from := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	next, err := spec.Next(from)
	require.NoError(t, err)
	want := time.Date(2026, 5, 5, 0, 0, 1, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next() = %v, want %v", next, want)
	}
	assert.True(t, spec.Matches(want))
	assert.False(t, spec.Matches(from))

	again, err := spec.Next(want)
	require.NoError(t, err)
	assert.True(t, again.Equal(want.Add(24*time.Hour)), "Next must be strictly after its argument")
}

func TestCronSpecValidate(t *testing.T) {
	assert.NoError(t, Daily(23, 59, 59).Validate())
	assert.Error(t, Daily(24, 0, 0).Validate())
	assert.Error(t, Daily(0, -1, 0).Validate())
	assert.NoError(t, CronSpec{}.Validate())
}
