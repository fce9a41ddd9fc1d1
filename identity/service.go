// Package identity is the default [walletauth.IdentityMaterializer] and
// [walletauth.AvailabilityLookup]: it maps verified login sessions onto the
// durable user directory, issues Redis-backed durable sessions with JWT
// access tokens and rotating refresh tokens, and applies the phone mutation
// authorized by the guarded phone-change flow.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbuswallet/walletauth"
	"github.com/nimbuswallet/walletauth/internal/random"
	"github.com/nimbuswallet/walletauth/jwt"
	"github.com/nimbuswallet/walletauth/session"
)

const defaultSessionTTL = 30 * 24 * time.Hour

var (
	// ErrRefreshInvalid is returned for a refresh token that is malformed,
	// unknown, expired, or already rotated away.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrAccessInvalid is returned for an access token that fails
	// verification during revocation.
	ErrAccessInvalid = errors.New("invalid access token")
)

// Config tunes the durable session layer.
type Config struct {
	// SessionTTL bounds the durable session and its refresh token. Defaults
	// to 30 days.
	SessionTTL time.Duration
}

// Service wires the user directory, the durable session store, and the
// access-token manager. Immutable after New.
type Service struct {
	dir      walletauth.UserDirectory
	sessions *session.Store
	tokens   *jwt.Manager
	ttl      time.Duration
}

// New validates dependencies and returns a Service.
func New(dir walletauth.UserDirectory, sessions *session.Store, tokens *jwt.Manager, cfg Config) (*Service, error) {
	if dir == nil {
		return nil, errors.New("user directory required")
	}
	if sessions == nil {
		return nil, errors.New("session store required")
	}
	if tokens == nil {
		return nil, errors.New("token manager required")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Service{dir: dir, sessions: sessions, tokens: tokens, ttl: ttl}, nil
}

// IsAvailable reports whether the phone or email is unclaimed by any user.
func (s *Service) IsAvailable(ctx context.Context, medium walletauth.Medium, value string) (bool, error) {
	var err error
	switch medium {
	case walletauth.MediumEmail:
		_, err = s.dir.FindByEmail(ctx, value)
	default:
		_, err = s.dir.FindByPhone(ctx, value)
	}
	if errors.Is(err, walletauth.ErrUserNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// CreateOrGetIdentity resolves the durable user for a fully verified
// phone+email pair, creating one when neither identifier is bound yet. Phone
// wins when both identifiers resolve (they were verified in that order).
func (s *Service) CreateOrGetIdentity(ctx context.Context, phone, email string) (walletauth.Identity, error) {
	rec, err := s.dir.FindByPhone(ctx, phone)
	if errors.Is(err, walletauth.ErrUserNotFound) {
		rec, err = s.dir.FindByEmail(ctx, email)
	}
	if errors.Is(err, walletauth.ErrUserNotFound) {
		rec, err = s.dir.Create(ctx, walletauth.CreateUserInput{Phone: phone, Email: email})
	}
	if err != nil {
		return walletauth.Identity{}, err
	}
	return identityFromRecord(rec), nil
}

// IssueDurableSession creates a durable session for the identity and returns
// the access/refresh token pair.
func (s *Service) IssueDurableSession(ctx context.Context, id walletauth.Identity) (walletauth.Token, error) {
	sid, err := random.NewSessionID()
	if err != nil {
		return walletauth.Token{}, err
	}
	secret, err := random.NewRefreshSecret()
	if err != nil {
		return walletauth.Token{}, err
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	sessionID := sid.String()

	if err := s.sessions.Save(ctx, sessionID, &session.Record{
		UserID:      id.UserID,
		RefreshHash: random.HashRefreshSecret(secret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
	}, s.ttl); err != nil {
		return walletauth.Token{}, err
	}

	access, err := s.tokens.CreateAccess(id.UserID, sessionID, now)
	if err != nil {
		return walletauth.Token{}, err
	}
	refresh, err := random.EncodeRefreshToken(sessionID, secret)
	if err != nil {
		return walletauth.Token{}, err
	}

	return walletauth.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		ExpiresAt:    expiresAt,
	}, nil
}

// CurrentPhone resolves the phone number currently bound to the user.
func (s *Service) CurrentPhone(ctx context.Context, userID string) (string, error) {
	rec, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.Phone, nil
}

// UpdatePhone rebinds the user's phone number in the directory.
func (s *Service) UpdatePhone(ctx context.Context, userID, newPhone string) error {
	return s.dir.UpdatePhone(ctx, userID, newPhone)
}

// Refresh rotates the refresh secret and re-issues an access token. The old
// refresh token stops working the moment rotation commits.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (walletauth.Token, error) {
	sessionID, secret, err := random.DecodeRefreshToken(refreshToken)
	if err != nil {
		return walletauth.Token{}, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}

	nextSecret, err := random.NewRefreshSecret()
	if err != nil {
		return walletauth.Token{}, err
	}

	rec, err := s.sessions.Rotate(ctx, sessionID, random.HashRefreshSecret(secret), random.HashRefreshSecret(nextSecret))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrRefreshMismatch):
			return walletauth.Token{}, ErrRefreshInvalid
		}
		return walletauth.Token{}, err
	}

	now := time.Now()
	access, err := s.tokens.CreateAccess(rec.UserID, sessionID, now)
	if err != nil {
		return walletauth.Token{}, err
	}
	refresh, err := random.EncodeRefreshToken(sessionID, nextSecret)
	if err != nil {
		return walletauth.Token{}, err
	}

	return walletauth.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		ExpiresAt:    time.Unix(rec.ExpiresAt, 0),
	}, nil
}

// Revoke deletes the durable session named by a valid access token.
func (s *Service) Revoke(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return ErrAccessInvalid
	}
	_, err = s.sessions.Delete(ctx, claims.SID)
	return err
}

// Authenticate resolves the subject of a valid access token, checking that
// its durable session is still live. Used by the HTTP layer to guard the
// phone-change endpoints.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return "", ErrAccessInvalid
	}
	rec, err := s.sessions.Get(ctx, claims.SID)
	if err != nil {
		return "", ErrAccessInvalid
	}
	if rec.UserID != claims.UID {
		return "", ErrAccessInvalid
	}
	return rec.UserID, nil
}

func identityFromRecord(rec walletauth.UserRecord) walletauth.Identity {
	return walletauth.Identity{
		UserID:    rec.UserID,
		Phone:     rec.Phone,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
	}
}
