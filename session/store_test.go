package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, ""), mr
}

func testRecord(ttl time.Duration) *Record {
	now := time.Now()
	return &Record{
		UserID:      "u1",
		RefreshHash: sha256.Sum256([]byte("secret-a")),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(time.Hour)
	if err := s.Save(ctx, "sid-1", rec, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != rec.UserID || got.RefreshHash != rec.RefreshHash || got.ExpiresAt != rec.ExpiresAt {
		t.Fatalf("record mismatch: %+v vs %+v", got, rec)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExpiredRecordDeletes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(-time.Minute)
	if err := s.Save(ctx, "sid-1", rec, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Get(ctx, "sid-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := s.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record should be gone, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "sid-1", testRecord(time.Hour), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	existed, err := s.Delete(ctx, "sid-1")
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = s.Delete(ctx, "sid-1")
	if err != nil || existed {
		t.Fatalf("second delete must be a no-op: existed=%v err=%v", existed, err)
	}
}

func TestRotateSwapsHash(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	oldHash := sha256.Sum256([]byte("secret-a"))
	newHash := sha256.Sum256([]byte("secret-b"))

	if err := s.Save(ctx, "sid-1", testRecord(time.Hour), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Rotate(ctx, "sid-1", oldHash, newHash); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	// Old secret no longer verifies; new one does.
	if _, err := s.Rotate(ctx, "sid-1", oldHash, newHash); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch for stale secret, got %v", err)
	}
	got, err := s.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RefreshHash != newHash {
		t.Fatal("stored hash was not rotated")
	}
}

func TestRotateMissingSession(t *testing.T) {
	s, _ := newTestStore(t)
	var h [32]byte
	if _, err := s.Rotate(context.Background(), "nope", h, h); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisDownReportsUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	if err := s.Save(context.Background(), "sid-1", testRecord(time.Hour), time.Hour); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := s.Get(context.Background(), "sid-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
