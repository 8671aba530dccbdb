package connector

import (
	"errors"
	"fmt"
)

// Kind is the programmatic error category attached to every failure in the
// connector plane. Callers branch on Kind instead of matching error strings.
type Kind string

const (
	KindInvalidManifest    Kind = "invalid_manifest"
	KindInvalidOperation   Kind = "invalid_operation"
	KindInvalidRequestSpec Kind = "invalid_request_spec"
	KindConnectorNotFound  Kind = "connector_not_found"
	KindOperationNotFound  Kind = "operation_not_found"
	KindFeatureDisabled    Kind = "feature_disabled"
	KindRateLimited        Kind = "rate_limited"
	KindDomainNotAllowed   Kind = "domain_not_allowed"
	KindKeyNotFound        Kind = "key_not_found"
	KindPermissionDenied   Kind = "permission_denied"
	KindOAuthSigning       Kind = "oauth_signing_error"
	KindTransport          Kind = "transport_error"
	KindProtocolAction     Kind = "protocol_action_unknown"
	KindPolicyDenied       Kind = "policy_denied"
)

// Error pairs a Kind with a human-readable message. Messages may name vault
// keys when that aids debugging but must never contain credential values.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error with a formatted message.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors report
// as transport errors, the most generic runtime category.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}
