package walletauth

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for the given id,
	// or when the id belongs to a session of a different kind.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session's TTL has elapsed. The
	// session is deleted as a side effect; the caller must restart the flow.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidStep is returned when an operation is called out of order for
	// the session's current step.
	ErrInvalidStep = errors.New("operation does not match session step")
	// ErrRateLimited is returned when challenge issuance for the key has
	// exhausted the fixed window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidCode is returned when the submitted OTP does not match the
	// outstanding challenge. The session survives for a same-step retry,
	// subject to the attempt ceiling.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrChallengeExpired is returned when the provider-side challenge window
	// elapsed. Attempt-consuming, same as ErrInvalidCode.
	ErrChallengeExpired = errors.New("verification challenge expired")
	// ErrMaxAttemptsExceeded is returned when a verification leg reaches the
	// attempt ceiling. Terminal: the session is destroyed.
	ErrMaxAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrOwnershipMismatch is returned when a phone-change session is used by
	// a subject other than the one it was created for.
	ErrOwnershipMismatch = errors.New("session does not belong to caller")
	// ErrProviderUnavailable is returned when the challenge delegate rejects
	// the destination or cannot be reached.
	ErrProviderUnavailable = errors.New("verification provider unavailable")
	// ErrLoginCompletionFailed is returned when identity materialization or
	// durable session issuance fails after both legs were verified. The
	// ephemeral session is already consumed; the flow must restart.
	ErrLoginCompletionFailed = errors.New("login completion failed")
	// ErrPhoneChangeFailed is returned when the durable phone update fails
	// after both phone numbers were verified. The session is consumed.
	ErrPhoneChangeFailed = errors.New("phone change completion failed")

	// ErrInvalidPhone is returned when the phone number is not E.164.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidEmail is returned when the email address is malformed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrSamePhone is returned when a phone change targets the number already
	// on the account.
	ErrSamePhone = errors.New("new phone matches current phone")
	// ErrPhoneInUse is returned when the requested new phone number is
	// already bound to another identity.
	ErrPhoneInUse = errors.New("phone number already in use")
	// ErrUserNotFound is returned by directory lookups for unknown users.
	ErrUserNotFound = errors.New("user not found")

	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Retryable reports whether the failed step may be retried on the same
// session. Only attempt-consuming code failures keep the session alive;
// every other failure either left the session untouched before any code was
// consumed (rate limit, validation, provider outage) or destroyed it.
func Retryable(err error) bool {
	return errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrChallengeExpired)
}
