package ai

import (
	"errors"
	"fmt"

	"chatdesk/internal/models"
)

var (
	// ErrMissingAPIKey is returned before any network call when the selected
	// provider needs a credential and none is stored.
	ErrMissingAPIKey = errors.New("API Key is missing")
	// ErrUnknownProvider is returned for a provider outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ConfigError reports settings that cannot produce a request.
type ConfigError struct {
	Provider models.Provider
	Err      error
}

func (e *ConfigError) Error() string {
	if errors.Is(e.Err, ErrUnknownProvider) {
		return fmt.Sprintf("%v: %s", e.Err, e.Provider)
	}
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError reports a failed request or a stream broken mid-flight.
type TransportError struct {
	Provider models.Provider
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
