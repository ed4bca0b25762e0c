package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
)

// Validation failures. Invalid articles are dropped before dedup and
// counted, never retried.
var (
	ErrMissingField     = errors.New("article missing required field")
	ErrHeadlineTooShort = errors.New("article headline too short")
)

const minHeadlineLen = 10

// Normalize converts a raw NewsAPI article to the canonical form. The body
// prefers full content over the teaser description.
func Normalize(raw RawArticle) models.Article {
	body := raw.Content
	if body == "" {
		body = raw.Description
	}
	return models.Article{
		EventID:   uuid.NewString(),
		Timestamp: parseTimestamp(raw.PublishedAt),
		Source:    "NewsAPI",
		Headline:  raw.Title,
		Body:      body,
		URL:       raw.URL,
	}
}

// Validate enforces the required fields before an article may enter the
// pipeline.
func Validate(a *models.Article) error {
	for field, value := range map[string]string{
		"event_id": a.EventID,
		"source":   a.Source,
		"headline": a.Headline,
		"url":      a.URL,
	} {
		if value == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	if len(a.Headline) < minHeadlineLen {
		return ErrHeadlineTooShort
	}
	return nil
}

func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC()
		}
	}
	log.Warn().Str("timestamp", ts).Msg("unparseable publish time, using now")
	return time.Now().UTC()
}
