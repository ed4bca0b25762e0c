package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
)

func sampleAlert() *models.Alert {
	return &models.Alert{
		ID:               "alert_risk_ev-1",
		RiskEventID:      "risk_ev-1",
		SeverityBand:     models.SeverityCritical,
		RiskScore:        14.25,
		Title:            "Operational Risk: Gulf Gas Logistics",
		Description:      "Pipeline halt cuts the sole LPG route.",
		AffectedSupplier: "Gulf Gas Logistics",
		AffectedMaterial: "LPG",
		Recommendations: []models.AlternateRec{
			{Name: "Muscat Gas", Country: "Oman", Score: 8.1, LeadTimeWeeks: 4, ApprovedVendor: true},
			{Name: "Doha Fuels", Country: "Qatar", Score: 7.4, LeadTimeWeeks: 5},
			{Name: "Salalah Energy", Country: "Oman", Score: 6.9, LeadTimeWeeks: 6},
			{Name: "Fourth Option", Country: "India", Score: 6.1, LeadTimeWeeks: 7},
		},
		RecommendationText: "Engage Muscat Gas immediately.",
		CreatedAt:          time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}
}

func TestWebhookMessageLayout(t *testing.T) {
	msg := WebhookMessage(sampleAlert())

	assert.Equal(t, ":rotating_light: Supply Chain Risk Alert", msg.Text)
	require.NotNil(t, msg.Blocks)
	// header, fields, description, alternates, recommendation
	require.Len(t, msg.Blocks.BlockSet, 5)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "Operational Risk: Gulf Gas Logistics")
	assert.Contains(t, body, "*Severity:*\\nCRITICAL")
	assert.Contains(t, body, "14.25")
	assert.Contains(t, body, "Muscat Gas")
	assert.Contains(t, body, "Salalah Energy")
	// only the top three alternates make the message
	assert.NotContains(t, body, "Fourth Option")
}

func TestWebhookMessageOmitsEmptySections(t *testing.T) {
	alert := sampleAlert()
	alert.Recommendations = nil
	alert.RecommendationText = ""
	alert.SeverityBand = models.SeverityLow

	msg := WebhookMessage(alert)
	assert.Equal(t, ":information_source: Supply Chain Risk Alert", msg.Text)
	assert.Len(t, msg.Blocks.BlockSet, 3)
}

func TestSlackNotifierPostsWebhook(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	require.NoError(t, s.Send(context.Background(), sampleAlert()))
	assert.Contains(t, got, "Gulf Gas Logistics")
}

func TestSlackNotifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "channel_not_found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	assert.Error(t, s.Send(context.Background(), sampleAlert()))
}

func TestNewSlackNotifierUnconfigured(t *testing.T) {
	assert.Nil(t, NewSlackNotifier(""))
}

func TestHTMLBody(t *testing.T) {
	body := HTMLBody(sampleAlert())
	assert.Contains(t, body, "#DC2626")
	assert.Contains(t, body, "Operational Risk: Gulf Gas Logistics")
	assert.Contains(t, body, "<strong>Severity:</strong> CRITICAL")
	assert.Contains(t, body, "Muscat Gas")
	assert.Contains(t, body, "Approved")
	assert.Contains(t, body, "Engage Muscat Gas immediately.")
	assert.NotContains(t, body, "Fourth Option")
}

func TestHTMLBodyWithoutRecommendations(t *testing.T) {
	alert := sampleAlert()
	alert.Recommendations = nil
	alert.RecommendationText = ""
	body := HTMLBody(alert)
	assert.NotContains(t, body, "Top Alternate Suppliers")
	assert.NotContains(t, body, "<h3>Recommendation</h3>")
}

func TestEmailNotifierSends(t *testing.T) {
	var path, auth, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e := NewEmailNotifier("test-key", "alerts@chainwatch.io", "ops@nayara.example")
	e.SetHost(srv.URL)

	require.NoError(t, e.Send(context.Background(), sampleAlert()))
	assert.Equal(t, "/v3/mail/send", path)
	assert.Equal(t, "Bearer test-key", auth)
	assert.Contains(t, body, "[CRITICAL] Operational Risk: Gulf Gas Logistics")
	assert.Contains(t, body, "ops@nayara.example")
}

func TestEmailNotifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewEmailNotifier("bad-key", "a@b.c", "d@e.f")
	e.SetHost(srv.URL)
	assert.Error(t, e.Send(context.Background(), sampleAlert()))
}

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) Send(context.Context, *models.Alert) error {
	s.calls++
	return s.err
}

func TestNotifierFanOut(t *testing.T) {
	reg := metrics.NewRegistry()
	slack := &stubSender{}
	email := &stubSender{}
	n := NewWithSenders(slack, email, reg)

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	assert.Equal(t, 1, slack.calls)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.NotificationsSent.WithLabelValues(ChannelSlack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.NotificationsSent.WithLabelValues(ChannelEmail)))
}

func TestNotifierPartialFailureStillSucceeds(t *testing.T) {
	reg := metrics.NewRegistry()
	slack := &stubSender{err: errors.New("webhook down")}
	email := &stubSender{}
	n := NewWithSenders(slack, email, reg)

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.NotificationsSent.WithLabelValues(ChannelSlack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.NotificationsSent.WithLabelValues(ChannelEmail)))
}

func TestNotifierAllChannelsFail(t *testing.T) {
	n := NewWithSenders(&stubSender{err: errors.New("down")}, &stubSender{err: errors.New("down")}, metrics.NewRegistry())
	err := n.Notify(context.Background(), sampleAlert())
	assert.ErrorIs(t, err, ErrNoChannels)
}

func TestNotifierNoChannelsConfigured(t *testing.T) {
	n := NewWithSenders(nil, nil, metrics.NewRegistry())
	assert.ErrorIs(t, n.Notify(context.Background(), sampleAlert()), ErrNoChannels)
}
