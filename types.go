package walletauth

import (
	"context"
	"time"
)

// Medium identifies the delivery target class for a challenge.
type Medium uint8

const (
	MediumPhone Medium = iota
	MediumEmail
)

// String returns "phone" or "email".
func (m Medium) String() string {
	if m == MediumEmail {
		return "email"
	}
	return "phone"
}

// Challenge is the provider-issued handle for one outstanding OTP, plus the
// delivery channel the provider actually used (e.g. "sms", "whatsapp",
// "email"). The channel is recorded for display only; the orchestrator never
// branches on it.
type Challenge struct {
	Handle  string
	Channel string
}

// VerifiedIdentity is the provider's view of a successfully verified
// destination.
type VerifiedIdentity struct {
	ProviderID  string
	Medium      Medium
	Destination string
}

// ChallengeDelegate is the external OTP primitive the orchestrator drives.
// Implementations map provider responses onto the package error taxonomy:
// SendChallenge fails with [ErrProviderUnavailable]; VerifyChallenge fails
// with [ErrInvalidCode], [ErrChallengeExpired], or [ErrProviderUnavailable].
type ChallengeDelegate interface {
	SendChallenge(ctx context.Context, medium Medium, destination string) (Challenge, error)
	VerifyChallenge(ctx context.Context, handle, code string) (VerifiedIdentity, error)
}

// AvailabilityLookup reports whether a phone or email is still unclaimed by
// any durable identity.
type AvailabilityLookup interface {
	IsAvailable(ctx context.Context, medium Medium, value string) (bool, error)
}

// Identity is the application's durable user record as seen by the
// orchestrator.
type Identity struct {
	UserID    string
	Phone     string
	Email     string
	CreatedAt time.Time
}

// Token is a durable session credential pair issued after a login flow
// completes.
type Token struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresAt    time.Time
}

// IdentityMaterializer turns a fully verified ephemeral session into durable
// state: the user record, the long-lived session, and the phone mutation.
// The default implementation is identity.Service.
type IdentityMaterializer interface {
	CreateOrGetIdentity(ctx context.Context, phone, email string) (Identity, error)
	IssueDurableSession(ctx context.Context, identity Identity) (Token, error)
	CurrentPhone(ctx context.Context, userID string) (string, error)
	UpdatePhone(ctx context.Context, userID, newPhone string) error
}

// UserRecord is the durable user row consumed by the default materializer.
type UserRecord struct {
	UserID    string
	Phone     string
	Email     string
	CreatedAt time.Time
}

// CreateUserInput is the input for [UserDirectory.Create].
type CreateUserInput struct {
	Phone string
	Email string
}

// UserDirectory is the durable user store interface that callers implement
// to integrate walletauth with their database. Lookups return
// [ErrUserNotFound] for unknown subjects.
type UserDirectory interface {
	FindByPhone(ctx context.Context, phone string) (UserRecord, error)
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, userID string) (UserRecord, error)
	Create(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePhone(ctx context.Context, userID, newPhone string) error
}

// LoginStart is returned by [Engine.StartPhoneLogin].
type LoginStart struct {
	SessionID string
	Step      string
	// Channel is the delivery channel the provider reported for the phone
	// challenge, surfaced so clients can tell the user where to look.
	Channel   string
	ExpiresAt time.Time
}

// LoginStep is returned by the intermediate login operations. Step is the
// session's step after the operation.
type LoginStep struct {
	SessionID string
	Step      string
	Channel   string
}

// LoginCompletion is returned by [Engine.CompleteLogin].
type LoginCompletion struct {
	Identity Identity
	// IsNewIdentity is true when both the phone and the email were unclaimed
	// when first observed, i.e. the login created a fresh identity.
	IsNewIdentity bool
	Token         Token
}

// PhoneChangeStart is returned by [Engine.StartPhoneChange].
type PhoneChangeStart struct {
	SessionID string
	Step      string
	Channel   string
	ExpiresAt time.Time
}

// PhoneChangeStep is returned by [Engine.VerifyCurrentPhoneOTP].
type PhoneChangeStep struct {
	SessionID string
	Step      string
	Channel   string
}

// PhoneChangeResult is returned by [Engine.VerifyNewPhoneOTP] on completion.
type PhoneChangeResult struct {
	OldPhone  string
	NewPhone  string
	ChangedAt time.Time
}
