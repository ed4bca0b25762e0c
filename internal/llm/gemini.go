// Package llm wraps the Gemini REST API: risk extraction with JSON-mode
// responses, text embeddings and free-form generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/chainwatch/chainwatch/internal/models"
)

// Model identifiers. Flash handles routine extraction; Pro is selected for
// complex geopolitical analysis.
const (
	ModelFlash = "gemini-1.5-flash"
	ModelPro   = "gemini-1.5-pro"
	ModelEmbed = "text-embedding-004"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrMalformed marks responses that parsed as HTTP 200 but did not contain
// usable JSON. Callers ack and drop instead of retrying.
var ErrMalformed = errors.New("malformed llm response")

// RiskExtraction is the validated result of a JSON-mode extraction call.
// Enum fields are coerced: unknown labels never fail the record.
type RiskExtraction struct {
	IsRisk                   bool
	RiskType                 models.RiskType
	AffectedEntities         []string
	AffectedSupplyChainNodes []string
	Severity                 models.Severity
	IsConfirmed              models.Confirmation
	TimeHorizon              models.TimeHorizon
	Reasoning                string
	RecommendedAction        string
}

// rawExtraction mirrors the JSON schema the prompt requests.
type rawExtraction struct {
	IsRisk                   bool     `json:"is_risk"`
	RiskType                 string   `json:"risk_type"`
	AffectedEntities         []string `json:"affected_entities"`
	AffectedSupplyChainNodes []string `json:"affected_supply_chain_nodes"`
	Severity                 string   `json:"severity"`
	IsConfirmed              string   `json:"is_confirmed"`
	TimeHorizon              string   `json:"time_horizon"`
	Reasoning                string   `json:"reasoning"`
	RecommendedAction        string   `json:"recommended_action"`
}

// Client is a long-lived handle on the Gemini API, shared by the extract
// worker and the report generator. Calls are rate limited and guarded by a
// circuit breaker so a vendor outage trips fast instead of burning retries.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a Gemini client with a 60s per-call budget.
func NewClient(apiKey string) *Client {
	st := gobreaker.Settings{Name: "gemini"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// SetBaseURL points the client at a test server.
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type embedRequest struct {
	Model    string  `json:"model"`
	Content  content `json:"content"`
	TaskType string  `json:"taskType"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// ExtractRisk asks the model whether the article describes a supply chain
// risk for the company and returns the structured classification. The
// returned extraction has IsRisk=false when the model sees no link.
func (c *Client) ExtractRisk(ctx context.Context, article *models.Article, company *models.CompanyProfile, supplierNames []string, usePro bool) (*RiskExtraction, error) {
	prompt := extractionPrompt(company, supplierNames, article)
	model := ModelFlash
	if usePro {
		model = ModelPro
	}

	text, err := c.generate(ctx, model, prompt, &generationConfig{
		ResponseMimeType: "application/json",
		Temperature:      0.1,
	})
	if err != nil {
		return nil, err
	}

	ex, err := ParseExtraction(text)
	if err != nil {
		log.Error().Err(err).Str("model", model).Str("article_id", article.ID).Msg("unparseable extraction response")
		return nil, err
	}
	log.Info().
		Bool("is_risk", ex.IsRisk).
		Str("risk_type", string(ex.RiskType)).
		Str("severity", string(ex.Severity)).
		Str("article_id", article.ID).
		Msg("risk extracted")
	return ex, nil
}

// Embed returns the semantic-similarity embedding for the text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := embedRequest{
		Model:    "models/" + ModelEmbed,
		Content:  content{Parts: []part{{Text: text}}},
		TaskType: "SEMANTIC_SIMILARITY",
	}
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", c.baseURL, ModelEmbed, c.apiKey)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := c.post(ctx, url, body)
		if err != nil {
			return nil, err
		}
		var er embedResponse
		if err := json.Unmarshal(raw, &er); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return er.Embedding.Values, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]float64), nil
}

// GenerateText produces free-form text, used by the recommendation writer
// and report generator.
func (c *Client) GenerateText(ctx context.Context, prompt string, usePro bool, temperature float64) (string, error) {
	model := ModelFlash
	if usePro {
		model = ModelPro
	}
	return c.generate(ctx, model, prompt, &generationConfig{Temperature: temperature})
}

func (c *Client) generate(ctx context.Context, model, prompt string, cfg *generationConfig) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: cfg,
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := c.post(ctx, url, body)
		if err != nil {
			return nil, err
		}
		var gr generateResponse
		if err := json.Unmarshal(raw, &gr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
			return nil, fmt.Errorf("%w: no candidates", ErrMalformed)
		}
		return gr.Candidates[0].Content.Parts[0].Text, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Client) post(ctx context.Context, url string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	return raw, nil
}

// ParseExtraction decodes a JSON-mode extraction response. Code fences
// around the JSON are tolerated; enum labels are coerced to known values.
func ParseExtraction(text string) (*RiskExtraction, error) {
	cleaned := StripFences(text)

	var raw rawExtraction
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &RiskExtraction{
		IsRisk:                   raw.IsRisk,
		RiskType:                 models.ParseRiskType(raw.RiskType),
		AffectedEntities:         raw.AffectedEntities,
		AffectedSupplyChainNodes: raw.AffectedSupplyChainNodes,
		Severity:                 models.ParseSeverity(raw.Severity),
		IsConfirmed:              models.ParseConfirmation(raw.IsConfirmed),
		TimeHorizon:              models.ParseTimeHorizon(raw.TimeHorizon),
		Reasoning:                raw.Reasoning,
		RecommendedAction:        raw.RecommendedAction,
	}, nil
}

// StripFences removes a markdown code fence wrapper if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func extractionPrompt(company *models.CompanyProfile, supplierNames []string, article *models.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a supply chain risk analyst for %s.\n\n", company.CompanyName)
	fmt.Fprintf(&b, "Company's key suppliers: %s\n", strings.Join(supplierNames, ", "))
	fmt.Fprintf(&b, "Company's raw materials: %s\n", strings.Join(company.RawMaterials, ", "))
	fmt.Fprintf(&b, "Key geographies: %s\n\n", strings.Join(company.KeyGeographies, ", "))
	b.WriteString("Analyze the following news article and return a JSON object ONLY (no explanation):\n\n")
	fmt.Fprintf(&b, "Article:\n%s\n\n%s\n\n", article.Headline, article.Body)
	b.WriteString(`JSON schema to follow:
{
  "is_risk": true or false,
  "risk_type": "geopolitical | natural_disaster | financial | regulatory | operational | cybersecurity | esg | other",
  "affected_entities": ["list of companies, countries, or materials mentioned"],
  "affected_supply_chain_nodes": ["names matching our supplier list or materials exactly"],
  "severity": "critical | high | medium | low",
  "is_confirmed": "true | false | uncertain",
  "time_horizon": "immediate | days | weeks | months",
  "reasoning": "one sentence explaining the link to our supply chain",
  "recommended_action": "one sentence immediate action"
}

Rules:
- Only set is_risk=true if this directly affects our suppliers, materials, or geographies
- affected_supply_chain_nodes must match names from the supplier list exactly (case-insensitive)
- Be conservative: if connection is weak or speculative, set is_risk=false
`)
	fmt.Fprintf(&b, "- severity should reflect potential operational impact to %s\n", company.CompanyName)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
