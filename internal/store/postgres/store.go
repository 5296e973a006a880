// Package postgres implements store.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/lib/pq"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	reader
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{
		reader: reader{q: db},
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return fmt.Errorf("%s: %w", pqErr.Constraint, store.ErrDuplicate)
		case "foreign_key_violation":
			return fmt.Errorf("%s: %w", pqErr.Constraint, store.ErrNotFound)
		}
	}
	return err
}

func affectedOrNotFound(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

// --- draw unit --------------------------------------------------------------

type drawTx struct {
	reader
	tx *sql.Tx
}

// WithDrawLock locks the (round, prize) allocation row for the duration of fn,
// so quota and eligibility reads and the winner insert are one serialized unit.
// The winners_round_participant_key constraint still rejects a duplicate winner
// raced in by a draw on another prize of the same round.
func (s *Store) WithDrawLock(ctx context.Context, roundID, prizeID string, fn func(tx store.DrawTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			SELECT 1 FROM round_prizes
			WHERE round_id = $1 AND prize_id = $2
			FOR UPDATE
		`, roundID, prizeID); err != nil {
			return fmt.Errorf("lock allocation: %w", err)
		}
		return fn(&drawTx{reader: reader{q: tx}, tx: tx})
	})
}

func (t *drawTx) InsertWinner(ctx context.Context, w models.WinnerRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO winners (id, round_id, prize_id, participant_id, drawn_at)
		VALUES ($1, $2, $3, $4, $5)
	`, w.ID, w.RoundID, w.PrizeID, w.RegistrantID, w.DrawnAt)
	if err != nil {
		logger.Warningf("postgres: insert winner round=%s prize=%s registrant=%s: %v", w.RoundID, w.PrizeID, w.RegistrantID, err)
		return mapErr(err)
	}
	return nil
}
