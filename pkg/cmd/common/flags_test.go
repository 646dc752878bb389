package common

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

func TestTimeRangeFlags_Validate(t *testing.T) {
	tests := []struct {
		name      string
		startTime string
		endTime   string
		errMsg    string
	}{
		{name: "valid time range", startTime: "now-24h", endTime: "now"},
		{name: "empty start time", startTime: "", endTime: "now", errMsg: "--start-time is required"},
		{name: "empty end time", startTime: "now-24h", endTime: "", errMsg: "--end-time is required"},
		{name: "both empty", errMsg: "--start-time is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := &TimeRangeFlags{StartTime: tt.startTime, EndTime: tt.endTime}

			err := flags.Validate()

			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTimeRangeFlags_ToTimeRange(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		startTime  string
		endTime    string
		wantPreset string
		wantStart  time.Time
		wantEnd    time.Time
		errMsg     string
	}{
		{
			name:       "known preset",
			startTime:  timerange.Last7Days,
			endTime:    "now",
			wantPreset: timerange.Last7Days,
		},
		{
			name:       "other relative start stays relative",
			startTime:  "now-2h",
			endTime:    "now",
			wantPreset: "now-2h",
		},
		{
			name:      "relative end is resolved",
			startTime: "now-2d",
			endTime:   "now-1d",
			wantStart: now.AddDate(0, 0, -2),
			wantEnd:   now.AddDate(0, 0, -1),
		},
		{
			name:      "absolute bounds",
			startTime: "2025-03-01T00:00:00Z",
			endTime:   "2025-03-02T00:00:00Z",
			wantStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "bad relative unit",
			startTime: "now-3y",
			endTime:   "now",
			errMsg:    "invalid duration unit",
		},
		{
			name:      "start after end",
			startTime: "2025-03-02T00:00:00Z",
			endTime:   "2025-03-01T00:00:00Z",
			errMsg:    "must be before end time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := &TimeRangeFlags{StartTime: tt.startTime, EndTime: tt.endTime}

			tr, err := flags.ToTimeRange(now)

			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			if tt.wantPreset != "" {
				assert.Equal(t, tt.wantPreset, tr.PresetKey())
				return
			}
			start, end, ok := tr.Bounds()
			require.True(t, ok)
			assert.True(t, tt.wantStart.Equal(start), "start %s", start)
			assert.True(t, tt.wantEnd.Equal(end), "end %s", end)
		})
	}
}

func TestAddTimeRangeFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	flags := &TimeRangeFlags{}

	AddTimeRangeFlags(cmd, flags, "now-7d")

	assert.NotNil(t, cmd.Flags().Lookup("start-time"))
	assert.NotNil(t, cmd.Flags().Lookup("end-time"))
	assert.Equal(t, "now-7d", flags.StartTime)
	assert.Equal(t, "now", flags.EndTime)
}

func TestPaginationFlags_Validate(t *testing.T) {
	tests := []struct {
		name          string
		limit         int32
		allPages      bool
		continueAfter string
		errMsg        string
	}{
		{name: "valid limit", limit: 25},
		{name: "minimum limit", limit: 1},
		{name: "maximum limit", limit: 1000},
		{name: "limit too low", limit: 0, errMsg: "--limit must be between 1 and 1000"},
		{name: "limit too high", limit: 1001, errMsg: "--limit must be between 1 and 1000"},
		{
			name:          "all-pages with continue-after",
			limit:         25,
			allPages:      true,
			continueAfter: "cursor123",
			errMsg:        "--all-pages and --continue-after are mutually exclusive",
		},
		{name: "continue-after alone", limit: 25, continueAfter: "cursor123"},
		{name: "all-pages alone", limit: 25, allPages: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := &PaginationFlags{
				Limit:         tt.limit,
				AllPages:      tt.allPages,
				ContinueAfter: tt.continueAfter,
			}

			err := flags.Validate()

			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAddPaginationFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	flags := &PaginationFlags{}

	AddPaginationFlags(cmd, flags, 50)

	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	assert.NotNil(t, cmd.Flags().Lookup("all-pages"))
	assert.NotNil(t, cmd.Flags().Lookup("continue-after"))
	assert.Equal(t, int32(50), flags.Limit)
	assert.False(t, flags.AllPages)
	assert.Empty(t, flags.ContinueAfter)
}

func TestOutputAndSuggestFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	output := &OutputFlags{}
	suggest := &SuggestFlags{}

	AddOutputFlags(cmd, output)
	AddSuggestFlags(cmd, suggest)

	assert.NotNil(t, cmd.Flags().Lookup("no-headers"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.False(t, suggest.IsSuggestMode())

	require.NoError(t, cmd.Flags().Set("suggest", "spec.actor.name"))
	assert.True(t, suggest.IsSuggestMode())
}

func TestFilterFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	flags := &FilterFlags{}
	AddFilterFlags(cmd, flags)

	require.NoError(t, cmd.ParseFlags([]string{
		"-n", "prod,staging",
		"--kind", "HTTPProxy",
		"--kind", "Gateway",
		"--actor", "alice",
		"--change-source", "human",
		"--search", "deleted",
		"--filter", "spec.actor.type == 'user'",
	}))

	got := flags.Filters()
	assert.Equal(t, filter.Filters{
		ChangeSource:  "human",
		ResourceKinds: []string{"HTTPProxy", "Gateway"},
		ActorNames:    []string{"alice"},
		Namespaces:    []string{"prod", "staging"},
		Search:        "deleted",
		Expression:    "spec.actor.type == 'user'",
	}, got)
	require.NoError(t, flags.Validate())
}

func TestFilterFlags_Validate(t *testing.T) {
	tests := []struct {
		name   string
		flags  FilterFlags
		errMsg string
	}{
		{name: "empty", flags: FilterFlags{}},
		{name: "system source", flags: FilterFlags{ChangeSource: "system"}},
		{name: "unknown source", flags: FilterFlags{ChangeSource: "robot"}, errMsg: "change source must be"},
		{name: "bad expression", flags: FilterFlags{Filter: "spec.actor.name =="}, errMsg: "invalid filter expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.Validate()
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNATSFlags_Validate(t *testing.T) {
	tests := []struct {
		name   string
		flags  NATSFlags
		errMsg string
	}{
		{name: "disabled", flags: NATSFlags{}},
		{name: "url only", flags: NATSFlags{}.with(func(f *NATSFlags) { f.URL = "nats://localhost:4222" })},
		{
			name: "tenant scoped",
			flags: NATSFlags{}.with(func(f *NATSFlags) {
				f.URL = "nats://localhost:4222"
				f.TenantType = "project"
				f.TenantName = "web"
			}),
		},
		{
			name:   "tenant name without type",
			flags:  NATSFlags{}.with(func(f *NATSFlags) { f.URL = "nats://x"; f.TenantName = "web" }),
			errMsg: "--tenant-name requires --tenant-type",
		},
		{
			name:   "tls without url",
			flags:  NATSFlags{}.with(func(f *NATSFlags) { f.TLSEnabled = true }),
			errMsg: "require --nats-url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.Validate()
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.flags.URL != "", tt.flags.Enabled())
		})
	}
}

func (f NATSFlags) with(mutate func(*NATSFlags)) NATSFlags {
	mutate(&f)
	return f
}
