package store

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no live record exists for the id, or the
	// id names a record of a different kind.
	ErrNotFound = errors.New("session record not found")
	// ErrExpired is returned when the record's TTL has elapsed. The record
	// is deleted before the error is returned.
	ErrExpired = errors.New("session record expired")
)

type kind uint8

const (
	kindLogin kind = iota
	kindChange
)

// record is the tagged variant stored per id. The kind is resolved once at
// lookup; callers asking for the wrong kind get ErrNotFound.
type record struct {
	mu   sync.Mutex
	kind kind
	// gone marks a record that has been logically deleted while a reference
	// to it may still be held outside the map lock.
	gone   bool
	login  *AuthSession
	change *PhoneChangeSession
}

func (r *record) expiresAt() time.Time {
	if r.kind == kindLogin {
		return r.login.ExpiresAt
	}
	return r.change.ExpiresAt
}

// Store is the concurrency-safe TTL map holding every ephemeral session.
// The map mutex guards membership only; each record carries its own mutex,
// held for the full duration of an operation on that session so that step
// and attempt mutation is serialized per id.
//
// Lock ordering: the map mutex is never acquired while a record mutex is
// held. Deletion therefore marks the record gone under its own mutex first
// and removes the map entry afterwards; removing an already-absent key is a
// no-op.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
}

// New returns an empty store. The map is always present; there is no lazy
// initialization.
func New() *Store {
	return &Store{records: make(map[string]*record)}
}

// PutLogin inserts a new login session.
func (s *Store) PutLogin(sess *AuthSession) {
	s.mu.Lock()
	s.records[sess.ID] = &record{kind: kindLogin, login: sess}
	s.mu.Unlock()
}

// PutChange inserts a new phone-change session.
func (s *Store) PutChange(sess *PhoneChangeSession) {
	s.mu.Lock()
	s.records[sess.ID] = &record{kind: kindChange, change: sess}
	s.mu.Unlock()
}

// WithLogin runs fn with exclusive ownership of the login session. The
// record mutex is held across fn, so fn may perform the delegate round trip
// without another operation observing intermediate counter state. fn returns
// remove=true to delete the session once it unlocks; fn's error is returned
// as-is. Expired records are deleted here and reported as ErrExpired before
// fn runs.
func (s *Store) WithLogin(id string, now time.Time, fn func(*AuthSession) (remove bool, err error)) error {
	return s.with(id, kindLogin, now, func(r *record) (bool, error) {
		return fn(r.login)
	})
}

// WithChange is WithLogin for phone-change sessions.
func (s *Store) WithChange(id string, now time.Time, fn func(*PhoneChangeSession) (remove bool, err error)) error {
	return s.with(id, kindChange, now, func(r *record) (bool, error) {
		return fn(r.change)
	})
}

func (s *Store) with(id string, k kind, now time.Time, fn func(*record) (bool, error)) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	rec.mu.Lock()
	if rec.gone {
		rec.mu.Unlock()
		return ErrNotFound
	}
	if rec.kind != k {
		rec.mu.Unlock()
		return ErrNotFound
	}
	if now.After(rec.expiresAt()) {
		rec.gone = true
		rec.mu.Unlock()
		s.remove(id)
		return ErrExpired
	}

	remove, err := fn(rec)
	if remove {
		rec.gone = true
	}
	rec.mu.Unlock()
	if remove {
		s.remove(id)
	}
	return err
}

// Delete removes the record for id regardless of kind or expiry. Reports
// whether a live record was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	rec, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	removed := !rec.gone
	rec.gone = true
	rec.mu.Unlock()

	s.remove(id)
	return removed
}

// Sweep evicts every record whose TTL elapsed before now and returns the
// eviction count. Safe to run concurrently with request handling; a record
// mid-operation is skipped until its mutex is free, and a second sweep with
// no elapsed time evicts nothing.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	snapshot := make(map[string]*record, len(s.records))
	for id, rec := range s.records {
		snapshot[id] = rec
	}
	s.mu.Unlock()

	evicted := 0
	for id, rec := range snapshot {
		rec.mu.Lock()
		expired := !rec.gone && now.After(rec.expiresAt())
		if expired {
			rec.gone = true
		}
		rec.mu.Unlock()
		if expired {
			s.remove(id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of records currently in the map, including any not
// yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) remove(id string) {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
}
