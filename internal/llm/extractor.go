package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/kasa/internal/common"
)

// Extractor turns free text into names and intents using a chat model.
type Extractor struct {
	client      Client
	names       *ttlCache[[]string]
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   common.RetryOptions
}

// NewExtractor creates an extractor for the configured provider.
func NewExtractor(cfg Config, logger *slog.Logger) (*Extractor, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewExtractorWithClient(client, cfg, logger), nil
}

// NewExtractorWithClient wraps an existing client. Provider fields of cfg
// are ignored.
func NewExtractorWithClient(client Client, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := common.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Extractor{
		client:      client,
		names:       newTTLCache[[]string](cfg.CacheTTL),
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}
}

func (e *Extractor) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var content string
	err := common.WithRetry(ctx, func() error {
		if err := e.rateLimiter.wait(ctx); err != nil {
			return common.Permanent(fmt.Errorf("rate limit error: %w", err))
		}
		out, err := e.client.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			var re *common.RetryableError
			if !errors.As(err, &re) && !errors.Is(err, common.ErrRateLimit) {
				err = &common.RetryableError{Err: err, Retryable: true}
			}
			return err
		}
		content = out
		return nil
	}, e.retryOpts)
	return content, err
}

// ExtractNames returns the human names in info other than sender, most
// likely first. Malformed model output wraps common.ErrExtractionMalformed.
func (e *Extractor) ExtractNames(ctx context.Context, info, sender string) ([]string, error) {
	key := common.Fold(info) + "|" + common.Fold(sender)
	if names, ok := e.names.get(key); ok {
		e.logger.Debug("name extraction cache hit", "sender", sender)
		return names, nil
	}

	content, err := e.complete(ctx, namesSystemPrompt, namesUserPrompt(info, sender))
	if err != nil {
		return nil, fmt.Errorf("name extraction failed: %w", err)
	}
	names, err := parseNames(content)
	if err != nil {
		e.logger.Warn("unparseable name extraction output",
			"sender", sender,
			"output", common.Truncate(content, 120))
		return nil, err
	}

	e.names.set(key, names)
	e.logger.Info("extracted names", "sender", sender, "count", len(names))
	return names, nil
}

// ExtractIntent reads an operator reply. Unparseable model output yields an
// empty intent rather than an error; transport failures are returned.
func (e *Extractor) ExtractIntent(ctx context.Context, message string) (Intent, error) {
	content, err := e.complete(ctx, intentSystemPrompt(), intentUserPrompt(message))
	if err != nil {
		return Intent{}, fmt.Errorf("intent extraction failed: %w", err)
	}

	intent, err := parseIntent(content)
	if err != nil {
		e.logger.Warn("unparseable intent output, treating as empty",
			"output", common.Truncate(content, 120),
			"error", err)
		return Intent{}, nil
	}

	attrs := []any{"no_information", intent.NoInformation, "name", intent.Name}
	if intent.Category != nil {
		attrs = append(attrs, "category", string(*intent.Category))
	}
	e.logger.Info("extracted intent", attrs...)
	return intent, nil
}
