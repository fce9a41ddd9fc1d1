// Package session persists durable wallet sessions in Redis: one versioned
// binary record per session id, TTL-bound, holding the owner and the SHA-256
// hash of the current refresh secret.
package session

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "wds"
	recordVersionV1  = 1
)

var (
	// ErrNotFound is returned when no session exists for the id.
	ErrNotFound = errors.New("durable session not found")
	// ErrExpired is returned when the stored record outlived its ExpiresAt
	// (belt-and-braces over the Redis TTL).
	ErrExpired = errors.New("durable session expired")
	// ErrRefreshMismatch is returned when the presented refresh secret does
	// not hash to the stored value.
	ErrRefreshMismatch = errors.New("refresh secret mismatch")
	// ErrUnavailable is returned when Redis cannot be reached.
	ErrUnavailable = errors.New("session backend unavailable")
)

// Record is the durable session state at rest.
type Record struct {
	UserID      string
	RefreshHash [32]byte
	CreatedAt   int64
	ExpiresAt   int64
}

// Store reads and writes session records. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Store with the given key prefix; empty means the default.
func New(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Save writes the record under the session id with the given TTL.
func (s *Store) Save(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the live record for the id. Expired records are deleted and
// reported as ErrExpired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(sessionID)).Result()
		return nil, ErrExpired
	}
	return record, nil
}

// Delete removes the session. Reports whether a record existed.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Rotate atomically swaps the refresh hash after verifying the presented
// one, in a WATCH transaction so two concurrent rotations cannot both
// succeed with the same secret. Returns the record as it was before the
// swap.
func (s *Store) Rotate(ctx context.Context, sessionID string, providedHash, nextHash [32]byte) (*Record, error) {
	const maxRetries = 4
	key := s.key(sessionID)

	for i := 0; i < maxRetries; i++ {
		var rotated *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}
			if subtle.ConstantTimeCompare(record.RefreshHash[:], providedHash[:]) != 1 {
				return ErrRefreshMismatch
			}

			next := *record
			next.RefreshHash = nextHash
			encoded, err := encodeRecord(&next)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				return ErrExpired
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			rotated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrExpired), errors.Is(err, ErrRefreshMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		return rotated, nil
	}
	return nil, ErrNotFound
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if len(record.UserID) > 65535 {
		return nil, errors.New("session record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.RefreshHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	record := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.RefreshHash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
