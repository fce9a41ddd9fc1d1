package identity

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nimbuswallet/walletauth"
	"github.com/nimbuswallet/walletauth/jwt"
	"github.com/nimbuswallet/walletauth/session"
)

type memoryDirectory struct {
	mu    sync.Mutex
	seq   int
	users map[string]walletauth.UserRecord
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{users: make(map[string]walletauth.UserRecord)}
}

func (d *memoryDirectory) FindByPhone(_ context.Context, phone string) (walletauth.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return walletauth.UserRecord{}, walletauth.ErrUserNotFound
}

func (d *memoryDirectory) FindByEmail(_ context.Context, email string) (walletauth.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			return u, nil
		}
	}
	return walletauth.UserRecord{}, walletauth.ErrUserNotFound
}

func (d *memoryDirectory) FindByID(_ context.Context, userID string) (walletauth.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return walletauth.UserRecord{}, walletauth.ErrUserNotFound
	}
	return u, nil
}

func (d *memoryDirectory) Create(_ context.Context, input walletauth.CreateUserInput) (walletauth.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	u := walletauth.UserRecord{
		UserID:    "u" + strconv.Itoa(d.seq),
		Phone:     input.Phone,
		Email:     input.Email,
		CreatedAt: time.Now(),
	}
	d.users[u.UserID] = u
	return u, nil
}

func (d *memoryDirectory) UpdatePhone(_ context.Context, userID, newPhone string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return walletauth.ErrUserNotFound
	}
	u.Phone = newPhone
	d.users[userID] = u
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryDirectory) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "walletd-test",
	})
	if err != nil {
		t.Fatalf("jwt.NewManager failed: %v", err)
	}

	dir := newMemoryDirectory()
	svc, err := New(dir, session.New(rdb, ""), tokens, Config{SessionTTL: time.Hour})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return svc, dir
}

func TestIsAvailable(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	if _, err := dir.Create(ctx, walletauth.CreateUserInput{Phone: "+15550001", Email: "a@example.com"}); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	ok, err := svc.IsAvailable(ctx, walletauth.MediumPhone, "+15550001")
	if err != nil || ok {
		t.Fatalf("claimed phone should be unavailable: ok=%v err=%v", ok, err)
	}
	ok, err = svc.IsAvailable(ctx, walletauth.MediumPhone, "+15559999")
	if err != nil || !ok {
		t.Fatalf("unclaimed phone should be available: ok=%v err=%v", ok, err)
	}
	ok, err = svc.IsAvailable(ctx, walletauth.MediumEmail, "a@example.com")
	if err != nil || ok {
		t.Fatalf("claimed email should be unavailable: ok=%v err=%v", ok, err)
	}
}

func TestCreateOrGetIdentity(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrGetIdentity(ctx, "+15550001", "a@example.com")
	if err != nil {
		t.Fatalf("CreateOrGetIdentity failed: %v", err)
	}
	if created.UserID == "" {
		t.Fatal("expected a user id for the new identity")
	}

	// Same phone resolves to the same identity, no duplicate row.
	again, err := svc.CreateOrGetIdentity(ctx, "+15550001", "other@example.com")
	if err != nil {
		t.Fatalf("CreateOrGetIdentity failed: %v", err)
	}
	if again.UserID != created.UserID {
		t.Fatalf("expected existing identity %s, got %s", created.UserID, again.UserID)
	}
	if len(dir.users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(dir.users))
	}
}

func TestIssueDurableSessionAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateOrGetIdentity(ctx, "+15550001", "a@example.com")
	if err != nil {
		t.Fatalf("CreateOrGetIdentity failed: %v", err)
	}
	token, err := svc.IssueDurableSession(ctx, id)
	if err != nil {
		t.Fatalf("IssueDurableSession failed: %v", err)
	}
	if token.AccessToken == "" || token.RefreshToken == "" || token.SessionID == "" {
		t.Fatalf("incomplete token: %+v", token)
	}

	uid, err := svc.Authenticate(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if uid != id.UserID {
		t.Fatalf("expected subject %s, got %s", id.UserID, uid)
	}
}

func TestRefreshRotatesSecret(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateOrGetIdentity(ctx, "+15550001", "a@example.com")
	if err != nil {
		t.Fatalf("CreateOrGetIdentity failed: %v", err)
	}
	token, err := svc.IssueDurableSession(ctx, id)
	if err != nil {
		t.Fatalf("IssueDurableSession failed: %v", err)
	}

	rotated, err := svc.Refresh(ctx, token.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == token.RefreshToken {
		t.Fatal("refresh token must rotate")
	}
	if rotated.SessionID != token.SessionID {
		t.Fatal("session id must be stable across refresh")
	}

	if _, err := svc.Refresh(ctx, token.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("stale refresh token must be rejected, got %v", err)
	}
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("current refresh token must work: %v", err)
	}
}

func TestRevokeEndsSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateOrGetIdentity(ctx, "+15550001", "a@example.com")
	if err != nil {
		t.Fatalf("CreateOrGetIdentity failed: %v", err)
	}
	token, err := svc.IssueDurableSession(ctx, id)
	if err != nil {
		t.Fatalf("IssueDurableSession failed: %v", err)
	}

	if err := svc.Revoke(ctx, token.AccessToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token.AccessToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("revoked session must not authenticate, got %v", err)
	}
	if _, err := svc.Refresh(ctx, token.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("revoked session must not refresh, got %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}
