package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"SolarAlpha/internal/model"
	"SolarAlpha/internal/scan"
)

// positionFraction sizes every opportunity at 10% of the configured
// position cap.
var positionFraction = decimal.NewFromFloat(0.1)

// LlamaAdvisor asks a locally hosted llama.cpp-style completion server to
// judge the strongest scanner snapshot. An unreachable or unparseable
// model is ErrUnavailable; a HOLD/SELL verdict or a failed ethical check
// declines without error.
type LlamaAdvisor struct {
	scanner  *scan.Scanner
	client   *http.Client
	endpoint string
	model    string
	temp     float64
	maxTok   int

	maxPosition   decimal.Decimal
	minConfidence int
	log           zerolog.Logger
}

// Options configures the LlamaAdvisor.
type Options struct {
	Endpoint      string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	MaxPosition   decimal.Decimal
	MinConfidence int // confidence floor derived from risk tolerance
}

func NewLlamaAdvisor(scanner *scan.Scanner, opts Options, log zerolog.Logger) *LlamaAdvisor {
	return &LlamaAdvisor{
		scanner:       scanner,
		client:        &http.Client{Timeout: opts.Timeout},
		endpoint:      opts.Endpoint,
		model:         opts.Model,
		temp:          opts.Temperature,
		maxTok:        opts.MaxTokens,
		maxPosition:   opts.MaxPosition,
		minConfidence: opts.MinConfidence,
		log:           log.With().Str("component", "advisor").Logger(),
	}
}

func (a *LlamaAdvisor) Name() string { return "llama" }

// verdict is the JSON the model is asked to emit.
type verdict struct {
	Recommendation string `json:"recommendation"`
	Confidence     int    `json:"confidence"`
	Reason         string `json:"reason"`
	EthicalCheck   string `json:"ethical_check"`
}

// Propose scans the configured markets, sends the strongest snapshot to
// the model, and turns a BUY verdict into an opportunity.
func (a *LlamaAdvisor) Propose(ctx context.Context) (*model.Opportunity, error) {
	snapshots := a.scanner.Scan(ctx)
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: no market snapshots", ErrUnavailable)
	}

	best := pickBest(snapshots)
	v, err := a.analyze(ctx, best)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if v.EthicalCheck != "pass" {
		a.log.Warn().Str("symbol", best.Symbol).Str("reason", v.Reason).Msg("opportunity vetoed on ethical check")
		return nil, nil
	}
	if !strings.EqualFold(v.Recommendation, "BUY") {
		a.log.Info().Str("symbol", best.Symbol).Str("verdict", v.Recommendation).Msg("no buy recommendation")
		return nil, nil
	}
	if v.Confidence < a.minConfidence {
		a.log.Info().Str("symbol", best.Symbol).Int("confidence", v.Confidence).
			Int("floor", a.minConfidence).Msg("confidence below risk floor")
		return nil, nil
	}

	return &model.Opportunity{
		ID:           uuid.NewString(),
		Symbol:       best.Symbol,
		Market:       best.Market,
		Side:         model.SideBuy,
		Price:        best.LastPrice,
		Size:         a.maxPosition.Mul(positionFraction).Round(2),
		Confidence:   v.Confidence,
		Rationale:    v.Reason,
		DiscoveredAt: time.Now().UTC(),
	}, nil
}

// pickBest prefers the snapshot with the strongest 24h move.
func pickBest(snapshots []scan.Snapshot) *scan.Snapshot {
	best := &snapshots[0]
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].Change24h > best.Change24h {
			best = &snapshots[i]
		}
	}
	return best
}

// completionRequest is the llama.cpp /completion body.
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Content string `json:"content"`
}

func (a *LlamaAdvisor) analyze(ctx context.Context, snap *scan.Snapshot) (*verdict, error) {
	prompt := fmt.Sprintf(`Analyze this trading opportunity:

Symbol: %s
Current Price: $%s
24h Change: %.2f%%
Momentum (RSI): %.0f
Type: %s

Should we take this trade? Consider:
1. Risk level
2. Potential reward
3. Market conditions
4. Ethical implications

Respond with JSON:
{"recommendation": "BUY/SELL/HOLD", "confidence": 1-10, "reason": "brief explanation", "ethical_check": "pass/fail"}
`, snap.Symbol, snap.LastPrice, snap.Change24h, snap.Momentum, snap.Market)

	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		Model:       a.model,
		NPredict:    a.maxTok,
		Temperature: a.temp,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("model read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model: status %d, body: %s", resp.StatusCode, string(raw))
	}

	var cr completionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("model decode: %w", err)
	}

	v, err := parseVerdict(cr.Content)
	if err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	return v, nil
}

// parseVerdict extracts the verdict JSON, tolerating ```json fences the
// model tends to wrap its answer in.
func parseVerdict(text string) (*verdict, error) {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	text = strings.TrimSpace(text)
	// Fall back to the first {...} block for chatty models.
	if !strings.HasPrefix(text, "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in %q", text)
		}
		text = text[start : end+1]
	}

	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	if v.Recommendation == "" {
		return nil, fmt.Errorf("verdict missing recommendation")
	}
	return &v, nil
}
