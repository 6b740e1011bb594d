package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ojfbot/daily-logger/internal/logging"
)

// Provider names accepted by NewModel.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default configuration values.
const (
	defaultTimeout   = 90 * time.Second
	defaultMaxTokens = 4096
	defaultRate      = 50.0 / 60.0 // requests per second
	defaultBurst     = 5
)

// Options configures the model-backed oracle.
type Options struct {
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute float64
	Burst         int
	MaxTokens     int
	Meter         metric.Meter
}

// ErrBaseURLUnsupported is returned when a provider cannot target a custom endpoint.
var ErrBaseURLUnsupported = errors.New("base URL override not supported")

// NewModel builds the langchaingo model for opts.Provider.
func NewModel(opts Options) (llms.Model, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s API key required", opts.Provider)
	}

	switch opts.Provider {
	case ProviderOpenAI, "":
		o := []openai.Option{openai.WithToken(opts.APIKey)}
		if opts.Model != "" {
			o = append(o, openai.WithModel(opts.Model))
		}
		if opts.BaseURL != "" {
			o = append(o, openai.WithBaseURL(opts.BaseURL))
		}
		return openai.New(o...)
	case ProviderAnthropic:
		o := []anthropic.Option{anthropic.WithToken(opts.APIKey)}
		if opts.Model != "" {
			o = append(o, anthropic.WithModel(opts.Model))
		}
		if opts.BaseURL != "" {
			return nil, fmt.Errorf("%w for provider %s", ErrBaseURLUnsupported, opts.Provider)
		}
		return anthropic.New(o...)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", opts.Provider)
	}
}

// LLM implements Oracle on top of a langchaingo model.
type LLM struct {
	model     llms.Model
	limiter   *rate.Limiter
	timeout   time.Duration
	maxTokens int
	latency   metric.Float64Histogram

	// singlePrompt folds system and user text into one Human/Assistant
	// prompt for completion-style endpoints that read only the first message.
	singlePrompt bool
}

// New wraps model with rate limiting, a per-call timeout and latency metrics.
func New(model llms.Model, opts Options) (*LLM, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	limit := rate.Limit(defaultRate)
	if opts.RatePerMinute > 0 {
		limit = rate.Limit(opts.RatePerMinute / 60.0)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	meter := opts.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/ojfbot/daily-logger/internal/oracle")
	}
	latency, err := meter.Float64Histogram("cleaner.oracle.latency",
		metric.WithDescription("Oracle call latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating latency histogram: %w", err)
	}

	return &LLM{
		model:     model,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   timeout,
		maxTokens: maxTokens,
		latency:   latency,

		singlePrompt: opts.Provider == ProviderAnthropic,
	}, nil
}

// ValidateDoc asks which passages of a documentation file are stale.
func (l *LLM) ValidateDoc(ctx context.Context, req DocRequest) ([]DocEdit, error) {
	reply, err := l.complete(ctx, "doc", docSystemPrompt, docUserPrompt(req))
	if err != nil {
		return nil, err
	}
	edits, dropped, err := parseDocEdits(reply)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		logging.FromContext(ctx).Debug(ctx, "dropped malformed doc edits",
			zap.String("path", req.Path),
			zap.Int("dropped", dropped),
		)
	}
	return edits, nil
}

// ValidateTag asks whether a tag comment has been resolved.
func (l *LLM) ValidateTag(ctx context.Context, req TagRequest) (TagVerdict, error) {
	reply, err := l.complete(ctx, "tag", tagSystemPrompt, tagUserPrompt(req))
	if err != nil {
		return TagVerdict{}, err
	}
	return parseTagVerdict(reply)
}

func (l *LLM) complete(ctx context.Context, kind, system, user string) (string, error) {
	log := logging.FromContext(ctx)

	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	log.Trace(ctx, "oracle request", zap.String("kind", kind), zap.String("prompt", user))

	start := time.Now()
	resp, err := l.model.GenerateContent(ctx, l.messages(system, user),
		llms.WithMaxTokens(l.maxTokens),
		llms.WithTemperature(0),
	)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	l.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		return "", fmt.Errorf("oracle call: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrSchema)
	}

	reply := resp.Choices[0].Content
	log.Trace(ctx, "oracle reply", zap.String("kind", kind), zap.String("reply", reply))
	return reply, nil
}

func (l *LLM) messages(system, user string) []llms.MessageContent {
	if l.singlePrompt {
		return []llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeHuman, completionPrompt(system, user)),
		}
	}
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}
}

// completionPrompt renders the turn markers the text completion API expects.
func completionPrompt(system, user string) string {
	var b strings.Builder
	b.WriteString("\n\nHuman: ")
	b.WriteString(system)
	b.WriteString("\n\n")
	b.WriteString(user)
	b.WriteString("\n\nAssistant:")
	return b.String()
}

var _ Oracle = (*LLM)(nil)
