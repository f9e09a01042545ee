package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"plate-alert-service/internal/domain/detection"
)

var (
	errInvalidResponse = errors.New("invalid response from recognition provider")
	errNoProvider      = errors.New("no recognition provider configured")
)

// Gateway calls the primary recognition provider with exponential backoff and
// falls back to the backup provider from the second attempt on.
type Gateway struct {
	primary     Provider
	backup      Provider
	maxAttempts int
	baseDelay   time.Duration
	log         zerolog.Logger
}

func NewGateway(primary, backup Provider, maxAttempts int, baseDelay time.Duration, log zerolog.Logger) *Gateway {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Millisecond
	}
	return &Gateway{
		primary:     primary,
		backup:      backup,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		log:         log.With().Str("component", "provider_gateway").Logger(),
	}
}

func (g *Gateway) HasPrimary() bool { return g.primary != nil }
func (g *Gateway) HasBackup() bool  { return g.backup != nil }

// ValidateImageURL accepts only absolute http(s) URLs with a host.
func ValidateImageURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: image url is required", detection.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed image url: %v", detection.ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: image url must be a valid HTTP/HTTPS URL", detection.ErrValidation)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: image url has no host", detection.ErrValidation)
	}
	return nil
}

// Detect returns the first valid provider response. After all attempts fail the
// error wraps detection.ErrProviderUnavailable and the last provider error.
func (g *Gateway) Detect(ctx context.Context, imageURL string) (Response, error) {
	if err := ValidateImageURL(imageURL); err != nil {
		return nil, err
	}
	if g.primary == nil && g.backup == nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrProviderUnavailable, errNoProvider)
	}

	var (
		result  Response
		lastErr error
		attempt int
	)

	backoff := retry.WithMaxRetries(uint64(g.maxAttempts-1), retry.NewExponential(g.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		g.log.Debug().Int("attempt", attempt).Int("max_attempts", g.maxAttempts).Msg("detection attempt")

		resp, err := g.attempt(ctx, imageURL, attempt)
		if err != nil {
			lastErr = err
			g.log.Warn().Err(err).Int("attempt", attempt).Msg("detection attempt failed")
			return retry.RetryableError(err)
		}
		result = resp
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("%w: all %d detection attempts failed: %w", detection.ErrProviderUnavailable, attempt, lastErr)
	}
	return result, nil
}

func (g *Gateway) attempt(ctx context.Context, imageURL string, n int) (Response, error) {
	var primaryErr error
	if g.primary != nil {
		resp, err := g.call(ctx, g.primary, imageURL)
		if err == nil {
			return resp, nil
		}
		primaryErr = err
	} else {
		primaryErr = errNoProvider
	}

	if g.backup == nil || n < 2 {
		return nil, primaryErr
	}

	g.log.Info().Str("provider", g.backup.Name()).Int("attempt", n).Msg("trying backup recognition provider")
	resp, err := g.call(ctx, g.backup, imageURL)
	if err == nil {
		return resp, nil
	}
	return nil, errors.Join(primaryErr, err)
}

func (g *Gateway) call(ctx context.Context, p Provider, imageURL string) (Response, error) {
	resp, err := p.Detect(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	return resp, nil
}

// checkResponse rejects empty bodies, explicit error markers and bodies without outputs.
func checkResponse(resp Response) error {
	if len(resp) == 0 {
		return fmt.Errorf("%w: empty body", errInvalidResponse)
	}
	if e, ok := resp["error"]; ok {
		return fmt.Errorf("%w: %v", errInvalidResponse, e)
	}
	if _, ok := resp["outputs"]; !ok {
		return fmt.Errorf("%w: missing outputs", errInvalidResponse)
	}
	return nil
}
