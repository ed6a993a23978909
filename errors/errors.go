// Package errors provides standardized error handling patterns for the bridge.
// It includes error classification, standard error variables, and helper functions
// for consistent error wrapping and classification across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors the upstream host may redeliver on
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Connection and networking errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrCircuitOpen       = errors.New("circuit breaker open")

	// Input errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")

	// Publishing errors
	ErrPublishFailed    = errors.New("publish failed")
	ErrReconcileTimeout = errors.New("reconciliation timeout")
	ErrProducerClosed   = errors.New("producer closed")

	// Output channel errors
	ErrAckWriteFailed = errors.New("acknowledgement write failed")

	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrConfigNotFound = errors.New("configuration not found")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classRule lists what marks a plain (unclassified) error as belonging to a class.
// Patterns are matched against the lower-cased message as a last resort, which is
// how client library errors without sentinels get classified.
type classRule struct {
	sentinels []error
	patterns  []string
}

var classRules = map[ErrorClass]classRule{
	ErrorTransient: {
		sentinels: []error{
			ErrConnectionTimeout, ErrConnectionLost, ErrNoConnection, ErrCircuitOpen,
			ErrPublishFailed, ErrReconcileTimeout,
			context.DeadlineExceeded, context.Canceled,
		},
		patterns: []string{"timeout", "connection", "network", "temporary", "unavailable", "broker"},
	},
	ErrorFatal: {
		sentinels: []error{ErrInvalidConfig, ErrMissingConfig, ErrAckWriteFailed, ErrProducerClosed},
		patterns:  []string{"fatal", "panic", "invalid config", "missing config", "broken pipe"},
	},
	ErrorInvalid: {
		sentinels: []error{ErrInvalidData, ErrParsingFailed},
	},
}

// hasClass reports whether err belongs to class. An explicit ClassifiedError in the
// chain always wins over sentinels and patterns.
func hasClass(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == class
	}

	rule := classRules[class]
	for _, sentinel := range rule.sentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	if len(rule.patterns) == 0 {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range rule.patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsTransient checks if an error is transient. Connect retries only repeat on these.
func IsTransient(err error) bool {
	return hasClass(err, ErrorTransient)
}

// IsFatal checks if an error is fatal and should stop the process
func IsFatal(err error) bool {
	return hasClass(err, ErrorFatal)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	return hasClass(err, ErrorInvalid)
}

// Classify returns the error class for an error. Unknown errors count as transient.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsInvalid(err):
		return ErrorInvalid
	case IsFatal(err):
		return ErrorFatal
	default:
		return ErrorTransient
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}
