// Package scheduler runs the periodic pipeline jobs: news fetch cycles and
// daily/weekly report generation. Jobs come from a YAML file; schedules are
// either a fixed interval or a fixed UTC wall-clock time. Fires missed while
// the process was down are dropped, not replayed.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Job types the scheduler knows how to dispatch.
const (
	JobNewsFetch    = "news.fetch"
	JobDailyReport  = "report.daily"
	JobWeeklyReport = "report.weekly"
)

const tickInterval = 30 * time.Second

// Duration accepts Go duration strings ("15m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Job is one scheduled job. Exactly one of Every or At must be set; At
// fires once per day (or once per week when Weekday is also set).
type Job struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Enabled     bool     `yaml:"enabled"`
	Every       Duration `yaml:"every,omitempty"`
	At          string   `yaml:"at,omitempty"`      // "08:00", UTC
	Weekday     string   `yaml:"weekday,omitempty"` // "monday", only with At
}

// Config is the scheduler's YAML document.
type Config struct {
	Jobs []Job `yaml:"jobs"`
}

// DefaultConfig returns the built-in schedule used when no YAML file is
// provided: fetch on the configured interval, daily report at 08:00 UTC,
// weekly report Monday 09:00 UTC.
func DefaultConfig(fetchInterval time.Duration) Config {
	return Config{Jobs: []Job{
		{Name: "news-fetch", Type: JobNewsFetch, Description: "poll the news source and enqueue normalized events", Enabled: true, Every: Duration(fetchInterval)},
		{Name: "daily-report", Type: JobDailyReport, Description: "generate the daily risk summary", Enabled: true, At: "08:00"},
		{Name: "weekly-report", Type: JobWeeklyReport, Description: "generate the weekly risk summary", Enabled: true, At: "09:00", Weekday: "monday"},
	}}
}

// LoadConfig reads the schedule from a YAML file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read schedule: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse schedule: %w", err)
	}
	for i := range cfg.Jobs {
		if err := validateJob(&cfg.Jobs[i]); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateJob(j *Job) error {
	if j.Name == "" || j.Type == "" {
		return fmt.Errorf("job needs name and type: %+v", j)
	}
	if (j.Every == 0) == (j.At == "") {
		return fmt.Errorf("job %s: exactly one of every or at must be set", j.Name)
	}
	if j.At != "" {
		if _, _, err := parseWallClock(j.At); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
	}
	if j.Weekday != "" {
		if _, err := parseWeekday(j.Weekday); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
	}
	return nil
}

// Runner executes one job type.
type Runner func(ctx context.Context) error

// Status is a point-in-time view for the status endpoint.
type Status struct {
	Running     bool                 `json:"running"`
	EnabledJobs int                  `json:"enabled_jobs"`
	Uptime      time.Duration        `json:"uptime"`
	LastRuns    map[string]time.Time `json:"last_runs"`
}

// Scheduler dispatches jobs to their registered runners.
type Scheduler struct {
	config  Config
	runners map[string]Runner
	now     func() time.Time

	mu        sync.Mutex
	running   bool
	startTime time.Time
	lastRun   map[string]time.Time
}

// New builds a scheduler. Jobs whose type has no runner are disabled with
// a warning at startup.
func New(cfg Config, runners map[string]Runner) *Scheduler {
	for i := range cfg.Jobs {
		j := &cfg.Jobs[i]
		if j.Enabled && runners[j.Type] == nil {
			log.Warn().Str("job", j.Name).Str("type", j.Type).Msg("no runner registered, disabling job")
			j.Enabled = false
		}
	}
	return &Scheduler{
		config:  cfg,
		runners: runners,
		now:     time.Now,
		lastRun: make(map[string]time.Time),
	}
}

// Start ticks until the context is cancelled. Interval jobs fire on their
// first due tick after startup; wall-clock jobs fire only when the process
// is up at the scheduled minute.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = s.now()
	// anchor wall-clock jobs so a fire time already past today is skipped
	for _, j := range s.config.Jobs {
		if j.At != "" {
			s.lastRun[j.Name] = s.startTime
		}
	}
	s.mu.Unlock()

	log.Info().Int("jobs", len(s.config.Jobs)).Msg("scheduler started")
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			continue
		}
		s.mu.Lock()
		last := s.lastRun[job.Name]
		fire := due(job, last, now)
		if fire {
			s.lastRun[job.Name] = now
		}
		s.mu.Unlock()

		if fire {
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	start := s.now()
	log.Info().Str("job", job.Name).Str("type", job.Type).Msg("job starting")
	if err := s.runners[job.Type](ctx); err != nil {
		log.Error().Err(err).Str("job", job.Name).Dur("duration", s.now().Sub(start)).Msg("job failed")
		return
	}
	log.Info().Str("job", job.Name).Dur("duration", s.now().Sub(start)).Msg("job complete")
}

// RunJob executes one job by name immediately, outside its schedule.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, job := range s.config.Jobs {
		if job.Name != name {
			continue
		}
		runner := s.runners[job.Type]
		if runner == nil {
			return fmt.Errorf("job %s: no runner for type %s", name, job.Type)
		}
		s.mu.Lock()
		s.lastRun[job.Name] = s.now()
		s.mu.Unlock()
		return runner(ctx)
	}
	return fmt.Errorf("job not found: %s", name)
}

// Jobs lists the configured jobs sorted by name.
func (s *Scheduler) Jobs() []Job {
	jobs := make([]Job, len(s.config.Jobs))
	copy(jobs, s.config.Jobs)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled := 0
	for _, j := range s.config.Jobs {
		if j.Enabled {
			enabled++
		}
	}
	last := make(map[string]time.Time, len(s.lastRun))
	for k, v := range s.lastRun {
		last[k] = v
	}
	st := Status{Running: s.running, EnabledJobs: enabled, LastRuns: last}
	if s.running {
		st.Uptime = s.now().Sub(s.startTime)
	}
	return st
}

// due reports whether a job should fire at now given its last fire time.
// Wall-clock jobs fire when the scheduled time for the current day (or
// week) lies between the last fire and now; earlier missed fires are gone.
func due(job Job, last time.Time, now time.Time) bool {
	if job.Every > 0 {
		return now.Sub(last) >= time.Duration(job.Every)
	}

	hour, min, err := parseWallClock(job.At)
	if err != nil {
		return false
	}
	now = now.UTC()
	fire := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, time.UTC)

	if job.Weekday != "" {
		wd, err := parseWeekday(job.Weekday)
		if err != nil {
			return false
		}
		offset := int(now.Weekday()) - int(wd)
		if offset < 0 {
			offset += 7
		}
		fire = fire.AddDate(0, 0, -offset)
	}

	return !now.Before(fire) && last.Before(fire)
}

func parseWallClock(at string) (hour, min int, err error) {
	if _, err := fmt.Sscanf(at, "%d:%d", &hour, &min); err != nil {
		return 0, 0, fmt.Errorf("invalid wall-clock time %q", at)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("invalid wall-clock time %q", at)
	}
	return hour, min, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
}
