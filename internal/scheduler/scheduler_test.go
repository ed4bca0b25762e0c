package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(day int, hour, min int) time.Time {
	// 2026-06-01 is a Monday
	return time.Date(2026, 6, day, hour, min, 0, 0, time.UTC)
}

func TestDueInterval(t *testing.T) {
	job := Job{Name: "news-fetch", Type: JobNewsFetch, Enabled: true, Every: Duration(15 * time.Minute)}

	last := utc(1, 10, 0)
	assert.False(t, due(job, last, utc(1, 10, 14)))
	assert.True(t, due(job, last, utc(1, 10, 15)))
	assert.True(t, due(job, last, utc(1, 12, 0)))
}

func TestDueDaily(t *testing.T) {
	job := Job{Name: "daily-report", Type: JobDailyReport, Enabled: true, At: "08:00"}

	// fired yesterday, now past today's 08:00
	assert.True(t, due(job, utc(1, 8, 0), utc(2, 8, 1)))
	// fired today already
	assert.False(t, due(job, utc(2, 8, 1), utc(2, 9, 0)))
	// before today's fire time
	assert.False(t, due(job, utc(1, 8, 0), utc(2, 7, 59)))
}

func TestDueDailyMissedFiresDropped(t *testing.T) {
	job := Job{Name: "daily-report", Type: JobDailyReport, Enabled: true, At: "08:00"}

	// three days down: only the current day's fire counts, and only once
	assert.True(t, due(job, utc(1, 8, 0), utc(4, 8, 30)))
	assert.False(t, due(job, utc(4, 8, 30), utc(4, 9, 0)))
}

func TestDueWeekly(t *testing.T) {
	job := Job{Name: "weekly-report", Type: JobWeeklyReport, Enabled: true, At: "09:00", Weekday: "monday"}

	// Monday June 1 at 09:00 is the fire time for that week
	assert.True(t, due(job, utc(1, 8, 0), utc(1, 9, 0)))
	// Wednesday, already fired Monday
	assert.False(t, due(job, utc(1, 9, 0), utc(3, 12, 0)))
	// Wednesday, process was down Monday: the week's fire still lies
	// between last and now, so it runs once
	assert.True(t, due(job, time.Date(2026, 5, 25, 9, 0, 0, 0, time.UTC), utc(3, 12, 0)))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	doc := `jobs:
  - name: news-fetch
    type: news.fetch
    enabled: true
    every: 15m
  - name: daily-report
    type: report.daily
    enabled: true
    at: "08:00"
  - name: weekly-report
    type: report.weekly
    enabled: false
    at: "09:00"
    weekday: monday
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 3)
	assert.Equal(t, Duration(15*time.Minute), cfg.Jobs[0].Every)
	assert.Equal(t, "08:00", cfg.Jobs[1].At)
	assert.False(t, cfg.Jobs[2].Enabled)
}

func TestLoadConfigRejectsAmbiguousSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	doc := `jobs:
  - name: broken
    type: news.fetch
    enabled: true
    every: 15m
    at: "08:00"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(15 * time.Minute)
	require.Len(t, cfg.Jobs, 3)
	for _, j := range cfg.Jobs {
		assert.NoError(t, validateJob(&j))
		assert.True(t, j.Enabled)
	}
}

func TestRunJobByName(t *testing.T) {
	ran := 0
	s := New(DefaultConfig(15*time.Minute), map[string]Runner{
		JobNewsFetch:    func(context.Context) error { ran++; return nil },
		JobDailyReport:  func(context.Context) error { return nil },
		JobWeeklyReport: func(context.Context) error { return nil },
	})

	require.NoError(t, s.RunJob(context.Background(), "news-fetch"))
	assert.Equal(t, 1, ran)
	assert.Error(t, s.RunJob(context.Background(), "no-such-job"))
}

func TestNewDisablesJobsWithoutRunner(t *testing.T) {
	s := New(DefaultConfig(15*time.Minute), map[string]Runner{
		JobNewsFetch: func(context.Context) error { return nil },
	})

	st := s.Status()
	assert.Equal(t, 1, st.EnabledJobs)
	assert.False(t, st.Running)
}

func TestTickRunsDueJobs(t *testing.T) {
	ran := 0
	s := New(Config{Jobs: []Job{
		{Name: "news-fetch", Type: JobNewsFetch, Enabled: true, Every: Duration(15 * time.Minute)},
	}}, map[string]Runner{
		JobNewsFetch: func(context.Context) error { ran++; return nil },
	})

	clock := utc(1, 10, 0)
	s.now = func() time.Time { return clock }

	s.tick(context.Background())
	assert.Equal(t, 1, ran, "zero last-run means immediately due")

	clock = utc(1, 10, 5)
	s.tick(context.Background())
	assert.Equal(t, 1, ran)

	clock = utc(1, 10, 15)
	s.tick(context.Background())
	assert.Equal(t, 2, ran)
}
