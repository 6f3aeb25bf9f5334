package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapBackendError wraps lab-backend call failures with user-friendly context
func WrapBackendError(err error, endpoint string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Lab backend call failed: %s", endpoint),
		Reason:  extractNetworkReason(err),
		Hint:    "The lab backend may not be running, or its base URL is wrong",
		Try:     "fuzzlab serve   (in another terminal, then retry the run)",
		Err:     err,
	}
}

// WrapTargetError wraps failures reaching the fuzzed target itself
func WrapTargetError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with target at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The target may be down, or the host/port selection is wrong",
		Try:     fmt.Sprintf("fuzzlab run --protocol snmp --host %s --port %d", host, port),
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Check the YAML structure against the sample config",
		Try:     fmt.Sprintf("fuzzlab run --config %s --protocol snmp", configPath),
		Err:     err,
	}
}

// WrapStorageError wraps history-store read/write errors. Callers treat
// these as degradations, not fatal failures.
func WrapStorageError(err error, path string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("History storage error at %s", path),
		Reason:  err.Error(),
		Hint:    "The history file may be corrupt or the directory unwritable",
		Try:     "fuzzlab history clear",
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - endpoint may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - nothing is listening on this address"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or host unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - the peer closed the connection unexpectedly"
	}

	return "Network communication failed"
}
