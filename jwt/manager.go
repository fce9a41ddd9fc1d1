// Package jwt issues and verifies the short-lived access tokens bound to
// durable wallet sessions.
package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrTokenInvalid is returned for any token that fails signature,
	// structure, or claim validation.
	ErrTokenInvalid = errors.New("invalid access token")
	// ErrTokenExpired is returned for a structurally valid but expired token.
	ErrTokenExpired = errors.New("access token expired")
)

// Config holds the signing material and claim policy.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for HS256 or the ed25519 seed/private
	// key for Ed25519.
	PrivateKey []byte
	// PublicKey is required for Ed25519 verification.
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
}

// AccessClaims binds an access token to a user and a durable session.
type AccessClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and parses access tokens. Immutable after NewManager.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) != ed25519.SeedSize && len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, errors.New("ed25519 requires seed or private key")
		}
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("ed25519 requires public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess issues an access token for the user/session pair.
func (m *Manager) CreateAccess(uid, sid string, now time.Time) (string, error) {
	claims := AccessClaims{
		UID: uid,
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}

	switch m.config.SigningMethod {
	case MethodHS256:
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		return token.SignedString(m.config.PrivateKey)
	case MethodEd25519:
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
		return token.SignedString(m.privateKey())
	}
	return "", errors.New("unsupported signing method")
}

// Parse verifies the token signature and registered claims and returns the
// embedded access claims.
func (m *Manager) Parse(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	switch m.config.SigningMethod {
	case MethodHS256:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	case MethodEd25519:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) keyFunc(*jwt.Token) (any, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	case MethodEd25519:
		return ed25519.PublicKey(m.config.PublicKey), nil
	}
	return nil, errors.New("unsupported signing method")
}

func (m *Manager) privateKey() ed25519.PrivateKey {
	if len(m.config.PrivateKey) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(m.config.PrivateKey)
	}
	return ed25519.PrivateKey(m.config.PrivateKey)
}
