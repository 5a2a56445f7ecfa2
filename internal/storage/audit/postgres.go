package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const createLegPairsTable = `
CREATE TABLE IF NOT EXISTS leg_pairs (
	leg_pair_id        TEXT PRIMARY KEY,
	account            TEXT NOT NULL,
	currency           TEXT NOT NULL,
	spot_instrument    TEXT NOT NULL,
	future_instrument  TEXT NOT NULL,
	intent             TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	entry_yield        NUMERIC NOT NULL,
	spot_state         TEXT NOT NULL,
	spot_filled_size   NUMERIC NOT NULL,
	spot_price         NUMERIC NOT NULL,
	future_state       TEXT NOT NULL,
	future_filled_size NUMERIC NOT NULL,
	future_price       NUMERIC NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	settled_at         TIMESTAMPTZ NOT NULL
)`

const insertLegPair = `
INSERT INTO leg_pairs (
	leg_pair_id, account, currency, spot_instrument, future_instrument,
	intent, outcome, entry_yield,
	spot_state, spot_filled_size, spot_price,
	future_state, future_filled_size, future_price,
	created_at, settled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (leg_pair_id) DO UPDATE SET outcome = EXCLUDED.outcome,
	spot_state = EXCLUDED.spot_state, spot_filled_size = EXCLUDED.spot_filled_size,
	future_state = EXCLUDED.future_state, future_filled_size = EXCLUDED.future_filled_size,
	settled_at = EXCLUDED.settled_at`

const pgWriteTimeout = 5 * time.Second

// PostgresSink writes terminal LegPair outcomes into a relational table for
// the offline review tooling.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to Postgres and ensures the audit table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, createLegPairsTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ensure leg_pairs table")
	}
	return &PostgresSink{pool: pool}, nil
}

// Save inserts or upserts the record.
func (s *PostgresSink) Save(record Record) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres sink is not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), pgWriteTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, insertLegPair,
		record.LegPairID, record.Account, record.Currency, record.Spot, record.Future,
		string(record.Intent), string(record.Outcome), record.EntryYield,
		string(record.SpotState), record.SpotFilledSize, record.SpotPrice,
		string(record.FutureState), record.FutureFilled, record.FuturePrice,
		record.CreatedAt, record.SettledAt,
	)
	return errors.Wrap(err, "insert leg pair record")
}

// Close releases the pool.
func (s *PostgresSink) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
