package api

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// GeneratorConfig holds the model and pacing options shared by every run
type GeneratorConfig struct {
	TextModel      string
	VisionModel    string
	GeminiBaseURL  string
	MistralBaseURL string
	Temperature    float32
	MaxTokens      int32

	// RequestsPerMinute paces vendor calls; <= 0 disables pacing
	RequestsPerMinute int
	// MaxRetries is how many times a transient failure is retried
	MaxRetries     int
	InitialBackoff time.Duration
}

// TextClient generates text from a prompt
type TextClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// VisionClient describes images
type VisionClient interface {
	DescribeImages(ctx context.Context, urls []string, prompt string) (string, error)
}

// Generator paces and retries calls to the text and vision vendors
type Generator struct {
	text    TextClient
	vision  VisionClient
	limiter *rate.Limiter
	cfg     GeneratorConfig
	log     *logrus.Logger
}

// NewGenerator builds a Generator for one run's credentials. A missing Mistral
// key is allowed; image descriptions then fail with ErrVisionUnavailable.
func NewGenerator(ctx context.Context, cfg GeneratorConfig, geminiKey, mistralKey string, log *logrus.Logger) (*Generator, error) {
	text, err := NewGeminiClient(ctx, geminiKey, GeminiConfig{
		Model:       cfg.TextModel,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		BaseURL:     cfg.GeminiBaseURL,
	})
	if err != nil {
		return nil, err
	}

	var vision VisionClient
	if mistralKey != "" {
		mistral, err := NewMistralClient(mistralKey, cfg.VisionModel, cfg.MistralBaseURL)
		if err != nil {
			return nil, err
		}
		vision = mistral
	} else {
		log.Warn("No Mistral API key set, image posts will be handled as text only")
	}

	return NewGeneratorWithClients(cfg, text, vision, log), nil
}

// NewGeneratorWithClients wires a Generator around existing clients; vision may be nil
func NewGeneratorWithClients(cfg GeneratorConfig, text TextClient, vision VisionClient, log *logrus.Logger) *Generator {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}

	return &Generator{
		text:    text,
		vision:  vision,
		limiter: rate.NewLimiter(limit, 1), // no burst
		cfg:     cfg,
		log:     log,
	}
}

// Generate returns the raw comment text for prompt
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.call(ctx, "generate", func(ctx context.Context) (string, error) {
		return g.text.GenerateText(ctx, prompt)
	})
}

// DescribeImages returns a description of the images at urls
func (g *Generator) DescribeImages(ctx context.Context, urls []string, prompt string) (string, error) {
	if g.vision == nil {
		return "", ErrVisionUnavailable
	}
	return g.call(ctx, "describe_images", func(ctx context.Context) (string, error) {
		return g.vision.DescribeImages(ctx, urls, prompt)
	})
}

// call waits for the limiter and retries transient failures with exponential backoff
func (g *Generator) call(ctx context.Context, operation string, fn func(ctx context.Context) (string, error)) (string, error) {
	attempt := 0
	operationFn := func() (string, error) {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		out, err := fn(ctx)
		if err != nil && !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}

	notify := func(err error, wait time.Duration) {
		g.log.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
			"backoff":   wait,
		}).Warn("Generator request failed, retrying")
	}

	out, err := backoff.RetryNotifyWithData(operationFn, backoff.WithContext(g.policy(), ctx), notify)
	if err != nil {
		g.log.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"attempts":  attempt,
		}).Error("Generator request failed")
		return "", err
	}
	return out, nil
}

func (g *Generator) policy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.cfg.InitialBackoff
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 0

	retries := g.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(exp, uint64(retries))
}
