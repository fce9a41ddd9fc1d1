package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nimbuswallet/walletauth"
)

func TestSendChallenge(t *testing.T) {
	t.Run("created challenge returns handle and channel", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/challenges" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header %q", got)
			}
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["to"] != "+15550001" || body["channel"] != "sms" {
				t.Errorf("unexpected body %v", body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"sid":"VE123","channel":"sms","status":"pending"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		ch, err := c.SendChallenge(context.Background(), walletauth.MediumPhone, "+15550001")
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if ch.Handle != "VE123" || ch.Channel != "sms" {
			t.Errorf("unexpected challenge %+v", ch)
		}
	})

	t.Run("channel fallback is surfaced", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"sid":"VE124","channel":"call"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		ch, err := c.SendChallenge(context.Background(), walletauth.MediumPhone, "+15550001")
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if ch.Channel != "call" {
			t.Errorf("expected fallback channel, got %q", ch.Channel)
		}
	})

	t.Run("server error maps to ErrProviderUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		if _, err := c.SendChallenge(context.Background(), walletauth.MediumPhone, "+15550001"); !errors.Is(err, walletauth.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("network error maps to ErrProviderUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // closed before request is sent

		c := NewClient(srv.URL, "test-key")
		if _, err := c.SendChallenge(context.Background(), walletauth.MediumEmail, "a@b.co"); !errors.Is(err, walletauth.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})
}

func TestVerifyChallenge(t *testing.T) {
	t.Run("approved returns verified identity", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/challenges/VE123/check" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"status":"approved","entity_id":"ent-1","to":"+15550001"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		id, err := c.VerifyChallenge(context.Background(), "VE123", "123456")
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if id.ProviderID != "ent-1" || id.Destination != "+15550001" {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("pending maps to ErrInvalidCode", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"pending"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		if _, err := c.VerifyChallenge(context.Background(), "VE123", "000000"); !errors.Is(err, walletauth.ErrInvalidCode) {
			t.Errorf("expected ErrInvalidCode, got %v", err)
		}
	})

	t.Run("unknown handle maps to ErrChallengeExpired", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		if _, err := c.VerifyChallenge(context.Background(), "gone", "123456"); !errors.Is(err, walletauth.ErrChallengeExpired) {
			t.Errorf("expected ErrChallengeExpired, got %v", err)
		}
	})

	t.Run("expired status maps to ErrChallengeExpired", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"expired"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		if _, err := c.VerifyChallenge(context.Background(), "VE123", "123456"); !errors.Is(err, walletauth.ErrChallengeExpired) {
			t.Errorf("expected ErrChallengeExpired, got %v", err)
		}
	})

	t.Run("throttled check maps to ErrProviderUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error_code":"max_check_attempts"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-key")
		if _, err := c.VerifyChallenge(context.Background(), "VE123", "123456"); !errors.Is(err, walletauth.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("cancelled context returns error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"approved"}`))
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := NewClient(srv.URL, "test-key")
		if _, err := c.VerifyChallenge(ctx, "VE123", "123456"); err == nil {
			t.Error("expected non-nil error for cancelled context, got nil")
		}
	})
}
