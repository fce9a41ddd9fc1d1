package walletauth

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nimbuswallet/walletauth/internal/rate"
	"github.com/nimbuswallet/walletauth/internal/store"
)

// Engine is the authentication orchestrator. Construct it through
// [Builder.Build]; after that it is immutable and safe for concurrent use.
type Engine struct {
	config   Config
	delegate ChallengeDelegate
	lookup   AvailabilityLookup
	identity IdentityMaterializer

	sessions *store.Store
	limiter  *rate.Limiter

	logger  *slog.Logger
	metrics *Metrics

	done      chan struct{}
	sweepDone sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the background sweep task. Idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.done)
		e.sweepDone.Wait()
	})
}

// SweepNow runs one eviction pass over the session store and the rate
// limiter, outside the background schedule. Returns the number of sessions
// evicted.
func (e *Engine) SweepNow() int {
	if e == nil {
		return 0
	}
	now := time.Now()
	evicted := e.sessions.Sweep(now)
	e.limiter.Sweep(now)
	e.metrics.addSessionsSwept(evicted)
	if evicted > 0 {
		e.logger.Debug("session sweep", "evicted", evicted)
	}
	return evicted
}

func (e *Engine) sweepLoop() {
	defer e.sweepDone.Done()
	ticker := time.NewTicker(e.config.Sweep.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.SweepNow()
		case <-e.done:
			return
		}
	}
}

func (e *Engine) ready() error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return nil
}

// mapStoreErr translates the store's record-level sentinels into the public
// taxonomy. Everything else passes through untouched.
func (e *Engine) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, store.ErrExpired):
		return ErrSessionExpired
	}
	return err
}

// attemptFailure charges one failed verification to the counter at attempts
// and reports whether the ceiling was reached. Caller destroys the session
// when exceeded is true.
func (e *Engine) attemptFailure(attempts *int, leg string) (exceeded bool) {
	e.metrics.incOTPFailure(leg)
	*attempts++
	return *attempts >= e.config.OTP.MaxAttempts
}

// attemptConsuming reports whether a delegate verification error consumes an
// attempt. Provider outages do not: the code was never checked.
func attemptConsuming(err error) bool {
	return errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrChallengeExpired)
}
