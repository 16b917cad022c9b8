package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSignature rejects a webhook whose authenticity check failed.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidRequest wraps caller input that fails validation.
	ErrInvalidRequest = errors.New("invalid request")

	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDuplicateReference = errors.New("reference already exists")
	ErrUnknownProvider    = errors.New("provider not configured")
	ErrUnsupportedMethod  = errors.New("payment method not supported by provider")
	ErrBookingAlreadyPaid = errors.New("booking already has a confirmed payment")
	ErrRefundNotFound     = errors.New("refund not found")

	// ErrAmountMismatch blocks confirming a payment whose settled amount or
	// currency differs from what was requested.
	ErrAmountMismatch = errors.New("settled amount does not match payment")

	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

// ConfigurationError reports missing required configuration at construction.
type ConfigurationError struct {
	Component string
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: missing required configuration: %s", e.Component, strings.Join(e.Missing, ", "))
}

// TransportError is an infrastructure fault talking to a gateway: timeout,
// DNS failure, 5xx, or a body that could not be decoded. Callers may retry it
// with the same payment reference.
type TransportError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: transport error (status %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: transport error: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GatewayDeclineError is a gateway's explicit refusal. Payment adapters put
// its Message in the Error field of their results instead of returning it;
// the orchestration service turns a declined result back into this error.
type GatewayDeclineError struct {
	Provider Provider
	Code     string
	Message  string
}

func (e *GatewayDeclineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s declined (%s): %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s declined: %s", e.Provider, e.Message)
}

// InvalidRefundError is raised before calling the gateway when a refund
// request cannot be honoured.
type InvalidRefundError struct {
	Reason string
}

func (e *InvalidRefundError) Error() string {
	return "invalid refund: " + e.Reason
}

// TransitionError describes a status move the state machine forbids.
type TransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid payment status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsRetryable reports whether err is worth retrying with the same reference.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
