// Package store persists checkout sessions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

var (
	ErrNotFound                = errors.New("checkout session not found")
	ErrConflict                = errors.New("checkout session was modified concurrently")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

// Session pairs one order with its protocol metadata. Status holds the last
// status written; only terminal values are authoritative on read.
type Session struct {
	ID              int64
	ProtocolID      string
	OrderRef        string
	ChannelCode     string
	Status          protocol.Status
	IdempotencyKey  string
	LastRequestHash string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository stores sessions. Insert stores a new session together with
// the order it owns, or neither; a nil order inserts the session alone.
// Update compares Version and fails with ErrConflict when another writer got
// there first.
type Repository interface {
	Insert(ctx context.Context, s *Session, o *order.Order) error
	FindByProtocolID(ctx context.Context, protocolID string) (*Session, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Session, error)
	Update(ctx context.Context, s *Session) error
}
