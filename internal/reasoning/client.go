package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jroosing/dnsverdict/internal/model"
)

// ErrBreakerOpen is returned when the circuit breaker is Open or Half-Open
// with a probe already in flight.
var ErrBreakerOpen = errors.New("reasoning: circuit breaker open")

// DefaultTimeout is the per-call timeout; calls exceeding it count as a
// breaker failure.
const DefaultTimeout = 10 * time.Second

// Request is the compact feature bundle sent to the remote reasoning
// service.
type Request struct {
	Domain       string              `json:"domain"`
	Entropy      float64             `json:"entropy"`
	DigitRatio   float64             `json:"digit_ratio"`
	AnomalyScore float64             `json:"anomaly_score"`
	UpstreamMeta *model.UpstreamMeta `json:"upstream_meta,omitempty"`
	Context      string              `json:"context,omitempty"`
}

// response is the typed schema the remote service must conform to.
type response struct {
	RiskScore         int    `json:"risk_score"`
	Category          string `json:"category"`
	Explanation       string `json:"explanation"`
	RecommendedAction string `json:"recommended_action"`
}

// architecturalKeywords gates whether the request counts as an architectural
// question and therefore earns the costlier system-context prose; everything
// else gets the compact analysis prompt.
var architecturalKeywords = []string{"architecture", "design", "topology", "infrastructure"}

// Client calls the remote reasoning service, guarded by a Breaker.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	breaker    *Breaker
}

// NewClient returns a Client targeting endpoint, authenticated with apiKey.
func NewClient(endpoint, apiKey string, breaker *Breaker) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		breaker:    breaker,
	}
}

// Analyze submits a domain for remote analysis. hint is a free-form
// classification note (e.g. "possible DGA", "anomaly escalation") used only
// to decide whether to send architectural system-context prose.
func (c *Client) Analyze(ctx context.Context, req Request, hint string) (model.Verdict, error) {
	if !c.breaker.Allow() {
		return model.Verdict{}, ErrBreakerOpen
	}

	req.Context = buildContext(hint)

	v, err := c.call(ctx, req)
	if err != nil {
		c.breaker.RecordFailure()
		return model.Verdict{}, err
	}
	c.breaker.RecordSuccess()
	return v, nil
}

// buildContext implements the JIT-context cost optimization: only send the
// verbose system-context prose when hint reads as an architectural question.
func buildContext(hint string) string {
	lower := strings.ToLower(hint)
	for _, kw := range architecturalKeywords {
		if strings.Contains(lower, kw) {
			return "full-system-context: this domain was escalated from an architecture-adjacent classification path; consider upstream filter topology in your explanation."
		}
	}
	return "compact-analysis"
}

func (c *Client) call(ctx context.Context, req Request) (model.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("reasoning: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("reasoning: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("reasoning: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return model.Verdict{}, fmt.Errorf("reasoning: upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Verdict{}, fmt.Errorf("reasoning: unexpected status %d", resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Verdict{}, fmt.Errorf("reasoning: decode response: %w", err)
	}
	if err := validate(out); err != nil {
		return model.Verdict{}, err
	}

	return model.Verdict{
		Domain:   req.Domain,
		Risk:     scoreToRisk(out.RiskScore),
		Category: mapCategory(out.Category),
		Summary:  out.Explanation,
		Entropy:  req.Entropy,
		Source:   model.SourceReasoning,
	}, nil
}

func validate(r response) error {
	if r.RiskScore < 1 || r.RiskScore > 10 {
		return fmt.Errorf("reasoning: risk_score %d out of range", r.RiskScore)
	}
	switch r.Category {
	case "Ad", "Tracker", "Malware", "Unknown":
	default:
		return fmt.Errorf("reasoning: unrecognized category %q", r.Category)
	}
	return nil
}

// scoreToRisk maps the service's 1..10 risk_score to the Risk enum:
// 1-3 Low, 4-6 Medium, 7-8 High, 9-10 Critical.
func scoreToRisk(score int) model.Risk {
	switch {
	case score >= 9:
		return model.RiskCritical
	case score >= 7:
		return model.RiskHigh
	case score >= 4:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func mapCategory(c string) model.Category {
	switch c {
	case "Ad":
		return model.CategoryAdvertising
	case "Tracker":
		return model.CategoryTracker
	case "Malware":
		return model.CategoryMalware
	default:
		return model.CategoryUnknown
	}
}
