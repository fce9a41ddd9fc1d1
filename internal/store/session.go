package store

import "time"

// LoginStep enumerates the sequential login machine. Steps only advance in
// declaration order; no operation may skip a step.
type LoginStep uint8

const (
	StepPhoneVerification LoginStep = iota
	StepEmailInput
	StepEmailVerification
	StepReadyToComplete
	StepCompleted
)

var loginStepNames = [...]string{
	"phone_verification",
	"email_input",
	"email_verification",
	"ready_to_complete",
	"completed",
}

func (s LoginStep) String() string {
	if int(s) < len(loginStepNames) {
		return loginStepNames[s]
	}
	return "unknown"
}

// ChangeStep enumerates the guarded phone-change machine.
type ChangeStep uint8

const (
	StepVerifyCurrentPhone ChangeStep = iota
	StepVerifyNewPhone
	StepChangeCompleted
)

var changeStepNames = [...]string{
	"verify_current_phone",
	"verify_new_phone",
	"completed",
}

func (s ChangeStep) String() string {
	if int(s) < len(changeStepNames) {
		return changeStepNames[s]
	}
	return "unknown"
}

// AuthSession is the ephemeral state of one sequential login. Owned
// exclusively by the Store; mutated only inside [Store.WithLogin].
type AuthSession struct {
	ID    string
	Phone string
	Email string

	Step LoginStep

	// Availability is computed once, at the step that first observes the
	// identifier, and decides create-new vs log-into-existing at completion.
	PhoneAvailable bool
	EmailAvailable bool

	PhoneVerified bool
	EmailVerified bool

	PhoneAttempts int
	EmailAttempts int

	// Challenge handles are valid for exactly one verification cycle; each
	// verification step consumes and replaces its own handle.
	PhoneChallenge string
	EmailChallenge string

	PhoneChannel string
	EmailChannel string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// PhoneChangeSession is the ephemeral state of one guarded phone change,
// bound to a single already-authenticated subject.
type PhoneChangeSession struct {
	ID     string
	UserID string

	CurrentPhone string
	NewPhone     string

	Step ChangeStep

	CurrentVerified bool

	CurrentAttempts int
	NewAttempts     int

	CurrentChallenge string
	NewChallenge     string

	CurrentChannel string
	NewChannel     string

	CreatedAt time.Time
	ExpiresAt time.Time
}
