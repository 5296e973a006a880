package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// --- prizes -----------------------------------------------------------------

// CreatePrize inserts p under a fresh id.
func (s *Store) CreatePrize(ctx context.Context, p models.Prize) (models.Prize, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prizes (id, name, description, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.Description, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return models.Prize{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) UpdatePrize(ctx context.Context, p models.Prize) (models.Prize, error) {
	p.UpdatedAt = s.now()
	err := s.db.QueryRowContext(ctx, `
		UPDATE prizes
		SET name = $2, description = $3, image_url = $4, updated_at = $5
		WHERE id = $1
		RETURNING created_at
	`, p.ID, p.Name, p.Description, p.ImageURL, p.UpdatedAt).Scan(&p.CreatedAt)
	if err != nil {
		return models.Prize{}, fmt.Errorf("prize %s: %w", p.ID, mapErr(err))
	}
	return p, nil
}

func (s *Store) GetPrize(ctx context.Context, id string) (models.Prize, error) {
	var p models.Prize
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, image_url, created_at, updated_at
		FROM prizes WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.Prize{}, fmt.Errorf("prize %s: %w", id, mapErr(err))
	}
	return p, nil
}

func (s *Store) ListPrizes(ctx context.Context) ([]models.Prize, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, image_url, created_at, updated_at
		FROM prizes ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Prize
	for rows.Next() {
		var p models.Prize
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePrize relies on ON DELETE CASCADE for allocations and winners.
func (s *Store) DeletePrize(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prizes WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return affectedOrNotFound(res, "prize "+id)
}

// --- rounds -----------------------------------------------------------------

func insertAllocations(ctx context.Context, tx *sql.Tx, roundID string, allocations []models.RoundPrize, now time.Time) error {
	for pos, a := range allocations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO round_prizes (id, round_id, prize_id, quantity, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), roundID, a.PrizeID, a.Quantity, pos, now)
		if err != nil {
			return fmt.Errorf("allocate prize %s: %w", a.PrizeID, mapErr(err))
		}
	}
	return nil
}

func (s *Store) CreateRound(ctx context.Context, r models.Round) (models.Round, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO draw_rounds (id, name, description, date, is_active, is_completed, sort_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $7)
		`, r.ID, r.Name, r.Description, r.Date, r.IsCompleted, r.Order, now)
		if err != nil {
			return mapErr(err)
		}
		return insertAllocations(ctx, tx, r.ID, r.Prizes, now)
	})
	if err != nil {
		return models.Round{}, err
	}
	return s.GetRound(ctx, r.ID)
}

// UpdateRound locks the round's allocation rows first, so draws of the
// round wait for it and it sees every winner they committed. Kept
// allocations are updated in place to keep the rows those draws lock.
func (s *Store) UpdateRound(ctx context.Context, r models.Round) (models.Round, error) {
	now := s.now()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE draw_rounds
			SET name = $2, description = $3, date = $4, is_completed = $5, sort_order = $6, updated_at = $7
			WHERE id = $1
		`, r.ID, r.Name, r.Description, r.Date, r.IsCompleted, r.Order, now)
		if err != nil {
			return mapErr(err)
		}
		if err := affectedOrNotFound(res, "round "+r.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM round_prizes WHERE round_id = $1 FOR UPDATE`, r.ID); err != nil {
			return fmt.Errorf("lock allocations: %w", err)
		}

		drawn, err := drawnCounts(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		if err := store.BelowDrawn(r.ID, drawn, r.Prizes); err != nil {
			return err
		}

		kept := make([]string, len(r.Prizes))
		for i, a := range r.Prizes {
			kept[i] = a.PrizeID
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM round_prizes WHERE round_id = $1 AND prize_id <> ALL($2)
		`, r.ID, pq.Array(kept)); err != nil {
			return err
		}
		return upsertAllocations(ctx, tx, r.ID, r.Prizes, now)
	})
	if err != nil {
		return models.Round{}, err
	}
	return s.GetRound(ctx, r.ID)
}

func drawnCounts(ctx context.Context, tx *sql.Tx, roundID string) ([]store.DrawnCount, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT prize_id, COUNT(*) FROM winners
		WHERE round_id = $1
		GROUP BY prize_id
		ORDER BY MIN(drawn_at), prize_id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DrawnCount
	for rows.Next() {
		var d store.DrawnCount
		if err := rows.Scan(&d.PrizeID, &d.Drawn); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func upsertAllocations(ctx context.Context, tx *sql.Tx, roundID string, allocations []models.RoundPrize, now time.Time) error {
	for pos, a := range allocations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO round_prizes (id, round_id, prize_id, quantity, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (round_id, prize_id) DO UPDATE
			SET quantity = EXCLUDED.quantity, position = EXCLUDED.position
		`, uuid.NewString(), roundID, a.PrizeID, a.Quantity, pos, now)
		if err != nil {
			return fmt.Errorf("allocate prize %s: %w", a.PrizeID, mapErr(err))
		}
	}
	return nil
}

func (s *Store) ListRounds(ctx context.Context) ([]models.Round, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roundColumns+` FROM draw_rounds ORDER BY sort_order, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []models.Round
	index := make(map[string]int)
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		index[r.ID] = len(rounds)
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	allocRows, err := s.db.QueryContext(ctx, allocationQuery+` ORDER BY rp.round_id, rp.position, rp.created_at`)
	if err != nil {
		return nil, err
	}
	defer allocRows.Close()

	for allocRows.Next() {
		a, err := scanAllocation(allocRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[a.RoundID]; ok {
			rounds[i].Prizes = append(rounds[i].Prizes, a)
		}
	}
	return rounds, allocRows.Err()
}

// DeleteRound relies on ON DELETE CASCADE for registrants, allocations and winners.
func (s *Store) DeleteRound(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM draw_rounds WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return affectedOrNotFound(res, "round "+id)
}

// ActivateRound deactivates first so draw_rounds_single_active never sees two
// active rows.
func (s *Store) ActivateRound(ctx context.Context, id string) error {
	now := s.now()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE draw_rounds SET is_active = FALSE, updated_at = $2
			WHERE id <> $1 AND is_active
		`, id, now); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE draw_rounds SET is_active = TRUE, updated_at = $2
			WHERE id = $1
		`, id, now)
		if err != nil {
			return mapErr(err)
		}
		return affectedOrNotFound(res, "round "+id)
	})
}

// --- registrants ------------------------------------------------------------

// ReplaceRegistrants deletes the round's winners and registrants and loads
// the new set with COPY, in one transaction.
func (s *Store) ReplaceRegistrants(ctx context.Context, roundID string, registrants []models.Registrant) error {
	now := s.now()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM draw_rounds WHERE id = $1 FOR UPDATE`, roundID).Scan(&exists); err != nil {
			return fmt.Errorf("round %s: %w", roundID, mapErr(err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM winners WHERE round_id = $1`, roundID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE round_id = $1`, roundID); err != nil {
			return err
		}
		if len(registrants) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("participants", "id", "round_id", "code", "name", "phone", "created_at"))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range registrants {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx, r.ID, roundID, r.Code, r.Name, r.Phone, now); err != nil {
				return mapErr(err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return mapErr(err)
		}
		return nil
	})
}

func (s *Store) ListRegistrants(ctx context.Context, roundID string, offset, limit int) ([]models.Registrant, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participants WHERE ($1::text = '' OR round_id = $1)
	`, roundID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, code, name, phone, created_at
		FROM participants
		WHERE ($1::text = '' OR round_id = $1)
		ORDER BY created_at, code
		LIMIT $2 OFFSET $3
	`, roundID, limitArg(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []models.Registrant{}
	for rows.Next() {
		r, err := scanRegistrant(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// --- winners ----------------------------------------------------------------

// ListWinners returns a window of matching winners, newest first, and their total.
func (s *Store) ListWinners(ctx context.Context, f models.WinnerFilter, offset, limit int) ([]models.WinnerRecord, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.RoundID != "" {
		args = append(args, f.RoundID)
		conds = append(conds, fmt.Sprintf("w.round_id = $%d", len(args)))
	}
	if f.PrizeID != "" {
		args = append(args, f.PrizeID)
		conds = append(conds, fmt.Sprintf("w.prize_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM winners w`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limitArg(limit), offset)
	query := winnerQuery + where + fmt.Sprintf(" ORDER BY w.drawn_at DESC, w.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []models.WinnerRecord{}
	for rows.Next() {
		w, err := scanWinner(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

// --- settings ---------------------------------------------------------------

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	var st models.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(current_round_id, ''), code_length, updated_at
		FROM settings WHERE id = 1
	`).Scan(&st.CurrentRoundID, &st.CodeLength, &st.UpdatedAt)
	if err != nil {
		if mapped := mapErr(err); mapped == store.ErrNotFound {
			return models.Settings{}, nil
		}
		return models.Settings{}, err
	}
	return st, nil
}

// SaveSettings upserts the singleton settings row.
func (s *Store) SaveSettings(ctx context.Context, st models.Settings) (models.Settings, error) {
	st.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, current_round_id, code_length, updated_at)
		VALUES (1, NULLIF($1::text, ''), $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET current_round_id = EXCLUDED.current_round_id,
		    code_length = EXCLUDED.code_length,
		    updated_at = EXCLUDED.updated_at
	`, st.CurrentRoundID, st.CodeLength, st.UpdatedAt)
	if err != nil {
		return models.Settings{}, mapErr(err)
	}
	return st, nil
}

// limitArg maps a non-positive limit to NULL, which postgres treats as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
