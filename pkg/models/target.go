package models

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrInvalidTarget is returned when target validation fails.
	ErrInvalidTarget = errors.New("invalid target configuration")
)

// Target is a declared outbound HTTP endpoint: the exact request the
// executor materializes for every attempt. Headers and body template are
// sent verbatim; nothing is injected or rewritten.
type Target struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"   validate:"required,min=1"`
	URL            string            `json:"url"    validate:"required"`
	Method         string            `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers        map[string]string `json:"headers,omitempty"`
	BodyTemplate   string            `json:"body_template,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds" validate:"required,min=1"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Validate checks that the URL is an absolute http(s) URL. The timeout
// upper bound depends on runtime configuration and is enforced by the
// target service.
func (t *Target) Validate() error {
	parsed, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url must be an absolute http or https URL", ErrInvalidTarget)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%w: url is missing a host", ErrInvalidTarget)
	}

	if t.TimeoutSeconds < 1 {
		return fmt.Errorf("%w: timeout_seconds must be at least 1", ErrInvalidTarget)
	}

	return nil
}

// Timeout returns the per-attempt HTTP timeout.
func (t *Target) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}
