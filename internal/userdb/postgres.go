// Package userdb provides the Postgres-backed user directory.
package userdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuswallet/walletauth"
)

// Directory implements [walletauth.UserDirectory] over a pgx connection pool.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    phone      TEXT NOT NULL UNIQUE,
//	    email      TEXT NOT NULL UNIQUE,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Directory struct {
	pool *pgxpool.Pool
}

// New returns a Directory backed by the given pool. The pool's lifecycle
// belongs to the caller.
func New(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

const userColumns = "id, phone, email, created_at"

func (d *Directory) findOne(ctx context.Context, query string, arg any) (walletauth.UserRecord, error) {
	var rec walletauth.UserRecord
	err := d.pool.QueryRow(ctx, query, arg).Scan(&rec.UserID, &rec.Phone, &rec.Email, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return walletauth.UserRecord{}, walletauth.ErrUserNotFound
	}
	if err != nil {
		return walletauth.UserRecord{}, fmt.Errorf("userdb: query user: %w", err)
	}
	return rec, nil
}

func (d *Directory) FindByPhone(ctx context.Context, phone string) (walletauth.UserRecord, error) {
	return d.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE phone = $1", phone)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (walletauth.UserRecord, error) {
	return d.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

func (d *Directory) FindByID(ctx context.Context, userID string) (walletauth.UserRecord, error) {
	return d.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", userID)
}

func (d *Directory) Create(ctx context.Context, input walletauth.CreateUserInput) (walletauth.UserRecord, error) {
	var rec walletauth.UserRecord
	err := d.pool.QueryRow(ctx,
		"INSERT INTO users (phone, email) VALUES ($1, $2) RETURNING "+userColumns,
		input.Phone, input.Email,
	).Scan(&rec.UserID, &rec.Phone, &rec.Email, &rec.CreatedAt)
	if err != nil {
		return walletauth.UserRecord{}, fmt.Errorf("userdb: create user: %w", err)
	}
	return rec, nil
}

func (d *Directory) UpdatePhone(ctx context.Context, userID, newPhone string) error {
	tag, err := d.pool.Exec(ctx, "UPDATE users SET phone = $1 WHERE id = $2", newPhone, userID)
	if err != nil {
		return fmt.Errorf("userdb: update phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return walletauth.ErrUserNotFound
	}
	return nil
}
