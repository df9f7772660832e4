// Package sampling is the client for the LLM sampling provider of
// spec.md §6.3 (decomposition, context briefs, conflict resolution,
// synthesis reports). Grounded directly on the teacher's
// internal/compact/haiku.go: same Anthropic SDK client, same per-call OTel
// instrumentation, same net.Error/status-code retryability classification —
// generalized from one prompt shape (issue summarization) to the swarm
// coordinator's four phases, and with the retry loop itself lifted onto
// github.com/cenkalti/backoff/v4 instead of the teacher's hand-rolled
// `initialBackoff * 2^n` loop.
package sampling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/coordinator/swarmd/pkg/telemetry"
)

// ErrAPIKeyRequired is returned when no API key is available from either
// the config or the environment.
var ErrAPIKeyRequired = errors.New("sampling: API key required")

// Client is the sampling provider client used by the swarm coordinator's
// four phases. Requests carry a deadline (spec.md §4.6's "at most one LLM
// sampling call with an explicit overall deadline"); responses are raw
// JSON text the coordinator schema-validates itself, matching §6.3's
// "provider is treated as untrusted for structure."
type Client struct {
	client     anthropic.Client
	model      anthropic.Model
	maxRetries int
	maxTokens  int64
}

// Options configures a new Client.
type Options struct {
	APIKey     string
	Model      string
	MaxRetries int
	MaxTokens  int64
}

// New builds a sampling Client. ANTHROPIC_API_KEY takes precedence over an
// explicit APIKey, matching the teacher's newHaikuClient precedence. extra
// is forwarded to the SDK client constructor, letting tests inject
// option.WithBaseURL(mockServer.URL) the way the teacher's
// TestCompactTier1_WithMockAPI does.
func New(opts Options, extra ...option.RequestOption) (*Client, error) {
	apiKey := opts.APIKey
	if env := os.Getenv("ANTHROPIC_API_KEY"); env != "" {
		apiKey = env
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	model := opts.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	sampleMetricsOnce.Do(initSampleMetrics)

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	return &Client{
		client:     anthropic.NewClient(clientOpts...),
		model:      anthropic.Model(model),
		maxRetries: maxRetries,
		maxTokens:  maxTokens,
	}, nil
}

var sampleMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var sampleMetricsOnce sync.Once

func initSampleMetrics() {
	m := telemetry.Meter("github.com/coordinator/swarmd/sampling")
	sampleMetrics.inputTokens, _ = m.Int64Counter("swarmd.sampling.input_tokens",
		metric.WithDescription("sampling provider input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	sampleMetrics.outputTokens, _ = m.Int64Counter("swarmd.sampling.output_tokens",
		metric.WithDescription("sampling provider output tokens generated"),
		metric.WithUnit("{token}"),
	)
	sampleMetrics.duration, _ = m.Float64Histogram("swarmd.sampling.request.duration",
		metric.WithDescription("sampling provider request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Phase names the four swarm coordinator prompts, used only for metrics and
// span attributes.
type Phase string

const (
	PhaseDecompose  Phase = "decompose"
	PhaseContext    Phase = "context"
	PhaseResolve    Phase = "resolve"
	PhaseSynthesize Phase = "synthesize"
)

// Complete sends prompt to the provider and returns the raw text of its
// first content block, retrying transient failures with exponential
// backoff up to maxRetries times after the first attempt. The caller schema-validates the
// returned text against the phase's expected JSON shape.
func (c *Client) Complete(ctx context.Context, phase Phase, prompt string) (string, error) {
	tracer := telemetry.Tracer("github.com/coordinator/swarmd/sampling")
	ctx, span := tracer.Start(ctx, "sampling.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("swarmd.sampling.model", string(c.model)),
		attribute.String("swarmd.sampling.phase", string(phase)),
	)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 8 * time.Second
	policy.MaxElapsedTime = 0 // bounded by attempt count below, not wall clock
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)

	var result string
	attempt := 0
	operation := func() error {
		attempt++
		t0 := time.Now()
		message, err := c.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !isRetryable(err) {
				return backoff.Permanent(fmt.Errorf("non-retryable sampling error: %w", err))
			}
			return err
		}

		attrs := attribute.String("swarmd.sampling.model", string(c.model))
		if sampleMetrics.inputTokens != nil {
			sampleMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(attrs))
			sampleMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(attrs))
			sampleMetrics.duration.Record(ctx, ms, metric.WithAttributes(attrs))
		}
		span.SetAttributes(
			attribute.Int64("swarmd.sampling.input_tokens", message.Usage.InputTokens),
			attribute.Int64("swarmd.sampling.output_tokens", message.Usage.OutputTokens),
			attribute.Int("swarmd.sampling.attempts", attempt),
		)

		if len(message.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("sampling: empty response"))
		}
		content := message.Content[0]
		if content.Type != "text" {
			return backoff.Permanent(fmt.Errorf("sampling: unexpected content type %q", content.Type))
		}
		result = content.Text
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("sampling call failed after %d attempts: %w", attempt, err)
	}
	return result, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

// DecodeJSON unmarshals raw provider text into v, returning a descriptive
// error on schema mismatch so the coordinator can fall back deterministically
// per spec.md §4.6.
func DecodeJSON(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("sampling: invalid provider response: %w", err)
	}
	return nil
}
