package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("NEWSAPI_KEY", "nk")

	s := Load()

	assert.Equal(t, "mongodb://localhost:27017", s.MongoURI)
	assert.Equal(t, "supply_risk_db", s.MongoDBName)
	assert.Equal(t, "redis://localhost:6379/0", s.RedisURL)
	assert.Equal(t, 15, s.NewsFetchIntervalMinutes)
	assert.Equal(t, 15*time.Minute, s.FetchInterval())
	assert.InDelta(t, 0.3, s.NewsRelevanceThreshold, 1e-9)
	assert.InDelta(t, 3.0, s.AlertThresholdScore, 1e-9)
	assert.False(t, s.Production())
	require.NoError(t, s.Validate())
}

func TestValidateRequiredKeys(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"missing gemini key", func(s *Settings) { s.GeminiAPIKey = "" }},
		{"missing newsapi key", func(s *Settings) { s.NewsAPIKey = "" }},
		{"missing mongo uri", func(s *Settings) { s.MongoURI = "" }},
		{"missing redis url", func(s *Settings) { s.RedisURL = "" }},
		{"zero fetch interval", func(s *Settings) { s.NewsFetchIntervalMinutes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "gk")
			t.Setenv("NEWSAPI_KEY", "nk")
			s := Load()
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestEnvOverridesAndBadValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("NEWSAPI_KEY", "nk")
	t.Setenv("NEWS_FETCH_INTERVAL_MINUTES", "5")
	t.Setenv("ALERT_THRESHOLD_SCORE", "4.5")
	t.Setenv("NEWS_RELEVANCE_THRESHOLD", "not-a-float")
	t.Setenv("ENVIRONMENT", "production")

	s := Load()

	assert.Equal(t, 5, s.NewsFetchIntervalMinutes)
	assert.InDelta(t, 4.5, s.AlertThresholdScore, 1e-9)
	// Unparseable values fall back to defaults instead of failing startup.
	assert.InDelta(t, 0.3, s.NewsRelevanceThreshold, 1e-9)
	assert.True(t, s.Production())
}
