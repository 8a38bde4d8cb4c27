package service

import (
	"testing"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"

	"github.com/stretchr/testify/require"
)

func TestJobDefinition(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    model.Schedule
		then     string
	}{
		{"cron_5_fields", model.Schedule{Cron: "*/15 * * * *"}, ""},
		{"cron_6_fields", model.Schedule{Cron: "0 */2 * * * *"}, ""},
		{"cron_macro", model.Schedule{Cron: "@hourly"}, ""},
		{"duration", model.Schedule{Duration: "PT15M"}, ""},
		{"cron_wins", model.Schedule{Cron: "@daily", Duration: "nope"}, ""},
		{"cron_invalid", model.Schedule{Cron: "* * * *"}, "parsing cron: invalid field count: got 4 (want 5 or 6)"},
		{"duration_invalid", model.Schedule{Duration: "15m"}, "parsing duration: invalid ISO8601 duration"},
		{"duration_zero", model.Schedule{Duration: "PT0S"}, "parsing duration: invalid ISO8601 duration: duration must be positive"},
		{"empty", model.Schedule{}, "both cron and duration are empty"},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			def, err := jobDefinition(tc.given)
			if tc.then != "" {
				require.EqualError(t, err, tc.then)
				require.Nil(t, def)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, def)
		})
	}
}
