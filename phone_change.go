package walletauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuswallet/walletauth/internal/store"
)

// Phone-change rate limiting is keyed per user, not per number: the attacker
// model is a single compromised account being hammered.
func phoneChangeKey(userID string) string {
	return "phone-change:" + userID
}

// StartPhoneChange opens a guarded phone-change session for the
// authenticated subject. The first challenge goes to the *current* phone:
// control of the number on file is proven before the new number is ever
// contacted.
func (e *Engine) StartPhoneChange(ctx context.Context, userID, newPhone string) (PhoneChangeStart, error) {
	if err := e.ready(); err != nil {
		return PhoneChangeStart{}, err
	}
	newPhone, err := normalizePhone(newPhone)
	if err != nil {
		return PhoneChangeStart{}, err
	}

	currentPhone, err := e.identity.CurrentPhone(ctx, userID)
	if err != nil {
		return PhoneChangeStart{}, err
	}
	if newPhone == currentPhone {
		return PhoneChangeStart{}, ErrSamePhone
	}

	now := time.Now()
	key := phoneChangeKey(userID)
	if e.limiter.IsLimited(key, now) {
		e.metrics.incRateLimited()
		return PhoneChangeStart{}, ErrRateLimited
	}
	e.limiter.RecordAttempt(key, now)

	available, err := e.lookup.IsAvailable(ctx, MediumPhone, newPhone)
	if err != nil {
		return PhoneChangeStart{}, fmt.Errorf("phone availability lookup: %w", err)
	}
	if !available {
		return PhoneChangeStart{}, ErrPhoneInUse
	}

	challenge, err := e.delegate.SendChallenge(ctx, MediumPhone, currentPhone)
	if err != nil {
		return PhoneChangeStart{}, err
	}

	sess := &store.PhoneChangeSession{
		ID:               uuid.NewString(),
		UserID:           userID,
		CurrentPhone:     currentPhone,
		NewPhone:         newPhone,
		Step:             store.StepVerifyCurrentPhone,
		CurrentChallenge: challenge.Handle,
		CurrentChannel:   challenge.Channel,
		CreatedAt:        now,
		ExpiresAt:        now.Add(e.config.OTP.Expiry),
	}
	e.sessions.PutChange(sess)

	e.metrics.incChangeStarted()
	e.logger.Debug("phone change session created", "session", sess.ID, "user", userID)

	return PhoneChangeStart{
		SessionID: sess.ID,
		Step:      sess.Step.String(),
		Channel:   challenge.Channel,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// VerifyCurrentPhoneOTP proves control of the number on file. Success issues
// a fresh challenge to the new number and advances the session. The
// ownership check runs before step validation and before any mutation; a
// mismatch consumes no attempts.
func (e *Engine) VerifyCurrentPhoneOTP(ctx context.Context, userID, sessionID, code string) (PhoneChangeStep, error) {
	if err := e.ready(); err != nil {
		return PhoneChangeStep{}, err
	}

	var result PhoneChangeStep
	err := e.sessions.WithChange(sessionID, time.Now(), func(sess *store.PhoneChangeSession) (bool, error) {
		if sess.UserID != userID {
			return false, ErrOwnershipMismatch
		}
		if sess.Step != store.StepVerifyCurrentPhone {
			return false, ErrInvalidStep
		}

		if _, err := e.delegate.VerifyChallenge(ctx, sess.CurrentChallenge, code); err != nil {
			if !attemptConsuming(err) {
				return false, err
			}
			if e.attemptFailure(&sess.CurrentAttempts, "change_current") {
				e.metrics.incSessionKilled()
				e.logger.Warn("phone change session destroyed at attempt ceiling", "session", sess.ID, "leg", "current")
				return true, ErrMaxAttemptsExceeded
			}
			return false, err
		}

		challenge, err := e.delegate.SendChallenge(ctx, MediumPhone, sess.NewPhone)
		if err != nil {
			// The current-phone handle is consumed and cannot be verified
			// again; without a new-phone challenge the session is a dead
			// end, so it is destroyed and the flow restarts.
			return true, err
		}

		sess.CurrentVerified = true
		sess.CurrentAttempts = 0
		sess.CurrentChallenge = ""
		sess.NewChallenge = challenge.Handle
		sess.NewChannel = challenge.Channel
		sess.Step = store.StepVerifyNewPhone
		result = PhoneChangeStep{SessionID: sess.ID, Step: sess.Step.String(), Channel: challenge.Channel}
		return false, nil
	})
	if err != nil {
		return PhoneChangeStep{}, e.mapStoreErr(err)
	}
	return result, nil
}

// VerifyNewPhoneOTP proves control of the new number and completes the
// change: the durable identity's phone is rebound and the session is
// consumed. Authorizing the mutation only after both proofs is what blocks
// account takeover via a single stolen OTP. A durable-store failure after
// verification surfaces as [ErrPhoneChangeFailed]; the flow must restart.
func (e *Engine) VerifyNewPhoneOTP(ctx context.Context, userID, sessionID, code string) (PhoneChangeResult, error) {
	if err := e.ready(); err != nil {
		return PhoneChangeResult{}, err
	}

	var oldPhone, newPhone string
	err := e.sessions.WithChange(sessionID, time.Now(), func(sess *store.PhoneChangeSession) (bool, error) {
		if sess.UserID != userID {
			return false, ErrOwnershipMismatch
		}
		if sess.Step != store.StepVerifyNewPhone || !sess.CurrentVerified {
			return false, ErrInvalidStep
		}

		if _, err := e.delegate.VerifyChallenge(ctx, sess.NewChallenge, code); err != nil {
			if !attemptConsuming(err) {
				return false, err
			}
			if e.attemptFailure(&sess.NewAttempts, "change_new") {
				e.metrics.incSessionKilled()
				e.logger.Warn("phone change session destroyed at attempt ceiling", "session", sess.ID, "leg", "new")
				return true, ErrMaxAttemptsExceeded
			}
			return false, err
		}

		sess.Step = store.StepChangeCompleted
		oldPhone = sess.CurrentPhone
		newPhone = sess.NewPhone
		return true, nil
	})
	if err != nil {
		return PhoneChangeResult{}, e.mapStoreErr(err)
	}

	if err := e.identity.UpdatePhone(ctx, userID, newPhone); err != nil {
		return PhoneChangeResult{}, fmt.Errorf("%w: %v", ErrPhoneChangeFailed, err)
	}

	e.metrics.incChangeDone()
	e.logger.Info("phone number changed", "user", userID)

	return PhoneChangeResult{OldPhone: oldPhone, NewPhone: newPhone, ChangedAt: time.Now()}, nil
}
