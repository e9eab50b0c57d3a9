package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

const idempotencyKeyConstraint = "acp_checkout_sessions_idempotency_key_key"

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const sessionColumns = `id, protocol_id, order_ref, channel_code, status,
COALESCE(idempotency_key,''), COALESCE(last_request_hash,''), version, created_at, updated_at`

// Insert writes the order and the session in one transaction.
func (s *Store) Insert(ctx context.Context, sess *Session, o *order.Order) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "begin insert")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if o != nil {
		if err := order.InsertTx(ctx, tx, o); err != nil {
			return err
		}
	}
	err = tx.QueryRow(ctx, `
INSERT INTO acp_checkout_sessions(protocol_id, order_ref, channel_code, status, idempotency_key, last_request_hash, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),1,now(),now())
RETURNING id, version, created_at, updated_at`,
		sess.ProtocolID, sess.OrderRef, sess.ChannelCode, string(sess.Status), sess.IdempotencyKey, sess.LastRequestHash,
	).Scan(&sess.ID, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if o != nil {
			o.Version = 0
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == idempotencyKeyConstraint {
				return ErrDuplicateIdempotencyKey
			}
			return ErrConflict
		}
		return pkgerrors.Wrap(err, "insert checkout session")
	}
	if err := tx.Commit(ctx); err != nil {
		return pkgerrors.Wrap(err, "commit insert")
	}
	return nil
}

func (s *Store) FindByProtocolID(ctx context.Context, protocolID string) (*Session, error) {
	return s.findOne(ctx, `SELECT `+sessionColumns+` FROM acp_checkout_sessions WHERE protocol_id=$1`, protocolID)
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*Session, error) {
	return s.findOne(ctx, `SELECT `+sessionColumns+` FROM acp_checkout_sessions WHERE idempotency_key=$1`, key)
}

func (s *Store) findOne(ctx context.Context, q string, arg string) (*Session, error) {
	var (
		sess   Session
		status string
	)
	err := s.DB.QueryRow(ctx, q, arg).Scan(
		&sess.ID, &sess.ProtocolID, &sess.OrderRef, &sess.ChannelCode, &status,
		&sess.IdempotencyKey, &sess.LastRequestHash, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "select checkout session")
	}
	sess.Status = protocol.Status(status)
	return &sess, nil
}

func (s *Store) Update(ctx context.Context, sess *Session) error {
	err := s.DB.QueryRow(ctx, `
UPDATE acp_checkout_sessions
SET status=$2, version=version+1, updated_at=now()
WHERE protocol_id=$1 AND version=$3
RETURNING version, updated_at`, sess.ProtocolID, string(sess.Status), sess.Version).Scan(&sess.Version, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return pkgerrors.Wrap(err, "update checkout session")
	}
	return nil
}
