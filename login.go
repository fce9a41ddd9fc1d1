package walletauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuswallet/walletauth/internal/store"
)

// StartPhoneLogin opens a login session for the phone number: records the
// number's availability, issues the phone challenge, and charges one
// issuance to the phone's rate-limit window. The returned session starts at
// the phone-verification step.
func (e *Engine) StartPhoneLogin(ctx context.Context, phone string) (LoginStart, error) {
	if err := e.ready(); err != nil {
		return LoginStart{}, err
	}
	phone, err := normalizePhone(phone)
	if err != nil {
		return LoginStart{}, err
	}

	now := time.Now()
	if e.limiter.IsLimited(phone, now) {
		e.metrics.incRateLimited()
		return LoginStart{}, ErrRateLimited
	}
	// Charged regardless of what the provider does with the send.
	e.limiter.RecordAttempt(phone, now)

	available, err := e.lookup.IsAvailable(ctx, MediumPhone, phone)
	if err != nil {
		return LoginStart{}, fmt.Errorf("phone availability lookup: %w", err)
	}
	challenge, err := e.delegate.SendChallenge(ctx, MediumPhone, phone)
	if err != nil {
		return LoginStart{}, err
	}

	sess := &store.AuthSession{
		ID:             uuid.NewString(),
		Phone:          phone,
		Step:           store.StepPhoneVerification,
		PhoneAvailable: available,
		PhoneChallenge: challenge.Handle,
		PhoneChannel:   challenge.Channel,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.config.OTP.Expiry),
	}
	e.sessions.PutLogin(sess)

	e.metrics.incLoginStarted()
	e.logger.Debug("login session created", "session", sess.ID, "channel", challenge.Channel)

	return LoginStart{
		SessionID: sess.ID,
		Step:      sess.Step.String(),
		Channel:   challenge.Channel,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// VerifyPhoneOTP checks the submitted code against the outstanding phone
// challenge. Success advances the session to email input and resets the
// phone attempt counter; an attempt-consuming failure at the ceiling
// destroys the session with [ErrMaxAttemptsExceeded].
func (e *Engine) VerifyPhoneOTP(ctx context.Context, sessionID, code string) (LoginStep, error) {
	if err := e.ready(); err != nil {
		return LoginStep{}, err
	}

	var result LoginStep
	err := e.sessions.WithLogin(sessionID, time.Now(), func(sess *store.AuthSession) (bool, error) {
		if sess.Step != store.StepPhoneVerification {
			return false, ErrInvalidStep
		}

		if _, err := e.delegate.VerifyChallenge(ctx, sess.PhoneChallenge, code); err != nil {
			if !attemptConsuming(err) {
				return false, err
			}
			if e.attemptFailure(&sess.PhoneAttempts, "phone") {
				e.metrics.incSessionKilled()
				e.logger.Warn("login session destroyed at attempt ceiling", "session", sess.ID, "leg", "phone")
				return true, ErrMaxAttemptsExceeded
			}
			return false, err
		}

		sess.PhoneVerified = true
		sess.PhoneAttempts = 0
		sess.PhoneChallenge = ""
		sess.Step = store.StepEmailInput
		result = LoginStep{SessionID: sess.ID, Step: sess.Step.String()}
		return false, nil
	})
	if err != nil {
		return LoginStep{}, e.mapStoreErr(err)
	}
	return result, nil
}

// StartEmailLogin binds the email to the session, records its availability,
// and issues the email challenge. Requires a verified phone leg. A send
// failure leaves the session at the email-input step; no code was consumed,
// so the same call may be retried.
func (e *Engine) StartEmailLogin(ctx context.Context, sessionID, email string) (LoginStep, error) {
	if err := e.ready(); err != nil {
		return LoginStep{}, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return LoginStep{}, err
	}

	var result LoginStep
	err = e.sessions.WithLogin(sessionID, time.Now(), func(sess *store.AuthSession) (bool, error) {
		if sess.Step != store.StepEmailInput || !sess.PhoneVerified {
			return false, ErrInvalidStep
		}

		now := time.Now()
		if e.limiter.IsLimited(email, now) {
			e.metrics.incRateLimited()
			return false, ErrRateLimited
		}
		e.limiter.RecordAttempt(email, now)

		available, err := e.lookup.IsAvailable(ctx, MediumEmail, email)
		if err != nil {
			return false, fmt.Errorf("email availability lookup: %w", err)
		}
		challenge, err := e.delegate.SendChallenge(ctx, MediumEmail, email)
		if err != nil {
			return false, err
		}

		sess.Email = email
		sess.EmailAvailable = available
		sess.EmailChallenge = challenge.Handle
		sess.EmailChannel = challenge.Channel
		sess.Step = store.StepEmailVerification
		result = LoginStep{SessionID: sess.ID, Step: sess.Step.String(), Channel: challenge.Channel}
		return false, nil
	})
	if err != nil {
		return LoginStep{}, e.mapStoreErr(err)
	}
	return result, nil
}

// VerifyEmailOTP is the email counterpart of [Engine.VerifyPhoneOTP].
// Success advances the session to ready-to-complete; the durable identity is
// not touched yet.
func (e *Engine) VerifyEmailOTP(ctx context.Context, sessionID, code string) (LoginStep, error) {
	if err := e.ready(); err != nil {
		return LoginStep{}, err
	}

	var result LoginStep
	err := e.sessions.WithLogin(sessionID, time.Now(), func(sess *store.AuthSession) (bool, error) {
		if sess.Step != store.StepEmailVerification {
			return false, ErrInvalidStep
		}

		if _, err := e.delegate.VerifyChallenge(ctx, sess.EmailChallenge, code); err != nil {
			if !attemptConsuming(err) {
				return false, err
			}
			if e.attemptFailure(&sess.EmailAttempts, "email") {
				e.metrics.incSessionKilled()
				e.logger.Warn("login session destroyed at attempt ceiling", "session", sess.ID, "leg", "email")
				return true, ErrMaxAttemptsExceeded
			}
			return false, err
		}

		sess.EmailVerified = true
		sess.EmailAttempts = 0
		sess.EmailChallenge = ""
		sess.Step = store.StepReadyToComplete
		result = LoginStep{SessionID: sess.ID, Step: sess.Step.String()}
		return false, nil
	})
	if err != nil {
		return LoginStep{}, e.mapStoreErr(err)
	}
	return result, nil
}

// CompleteLogin consumes the fully verified session, materializes or
// retrieves the durable identity, and issues the durable session token. Not
// retryable: the ephemeral session is gone once this is called, and any
// downstream failure surfaces as [ErrLoginCompletionFailed] requiring a full
// restart.
func (e *Engine) CompleteLogin(ctx context.Context, sessionID string) (LoginCompletion, error) {
	if err := e.ready(); err != nil {
		return LoginCompletion{}, err
	}

	var phone, email string
	var isNew bool
	err := e.sessions.WithLogin(sessionID, time.Now(), func(sess *store.AuthSession) (bool, error) {
		if sess.Step != store.StepReadyToComplete {
			return false, ErrInvalidStep
		}
		sess.Step = store.StepCompleted
		phone = sess.Phone
		email = sess.Email
		isNew = sess.PhoneAvailable && sess.EmailAvailable
		return true, nil
	})
	if err != nil {
		return LoginCompletion{}, e.mapStoreErr(err)
	}

	identity, err := e.identity.CreateOrGetIdentity(ctx, phone, email)
	if err != nil {
		return LoginCompletion{}, fmt.Errorf("%w: %v", ErrLoginCompletionFailed, err)
	}
	token, err := e.identity.IssueDurableSession(ctx, identity)
	if err != nil {
		return LoginCompletion{}, fmt.Errorf("%w: %v", ErrLoginCompletionFailed, err)
	}

	e.metrics.incLoginCompleted()
	e.logger.Debug("login completed", "user", identity.UserID, "new_identity", isNew)

	return LoginCompletion{Identity: identity, IsNewIdentity: isNew, Token: token}, nil
}
