package factory

import (
	"fmt"

	"github.com/gmbyapa/kfactory/pkg/errors"
)

var (
	ErrNilHandle         = errors.Sentinel(`engine provider returned a nil handle`)
	ErrHandleNotReleased = errors.Sentinel(`stopped engine has not released its state`)
)

// ConfigurationError is returned by New when an option is missing or invalid.
// It is not retryable.
type ConfigurationError struct {
	Option string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(`factory configuration error on [%s]: %s`, e.Option, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// EngineStartError is returned by Start when an engine handle could not be
// built or started. The factory stays stopped and Start can be retried.
type EngineStartError struct {
	Err error
}

func (e *EngineStartError) Error() string {
	return fmt.Sprintf(`engine start failed: %s`, e.Err)
}

func (e *EngineStartError) Unwrap() error {
	return e.Err
}
