package order

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PGStore keeps each order as a JSONB document guarded by a version column.
type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

func (s *PGStore) Insert(ctx context.Context, o *Order) error {
	return insertOrder(ctx, s.DB, o)
}

// InsertTx stores a new order inside tx, so the caller can commit it together
// with the rows that reference it.
func InsertTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	return insertOrder(ctx, tx, o)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertOrder(ctx context.Context, q rowQuerier, o *Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	err = q.QueryRow(ctx, `
INSERT INTO acp_orders(id, channel_code, token_value, document, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,1,now(),now())
RETURNING version`, o.ID, o.ChannelCode, o.TokenValue, doc).Scan(&o.Version)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*Order, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.DB.QueryRow(ctx, `SELECT document, version FROM acp_orders WHERE id=$1`, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select order")
	}
	var o Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	o.Version = version
	return &o, nil
}

func (s *PGStore) Save(ctx context.Context, o *Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	tag, err := s.DB.Exec(ctx, `
UPDATE acp_orders
SET document=$2, version=version+1, updated_at=now()
WHERE id=$1 AND version=$3`, o.ID, doc, o.Version)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	o.Version++
	return nil
}

// PGSequence draws order numbers from a database sequence.
type PGSequence struct {
	DB *pgxpool.Pool
}

func (s PGSequence) Next(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.QueryRow(ctx, `SELECT nextval('acp_order_number_seq')`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "next order number")
	}
	return n, nil
}
