package postgres

import (
	"context"
	"fmt"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// reader implements store.Reader over a *sql.DB or a *sql.Tx.
type reader struct {
	q querier
}

const roundColumns = `id, name, description, date, is_active, is_completed, sort_order, created_at, updated_at`

const allocationQuery = `
	SELECT rp.id, rp.round_id, rp.prize_id, rp.quantity, rp.position, rp.created_at,
	       p.id, p.name, p.description, p.image_url, p.created_at, p.updated_at
	FROM round_prizes rp
	JOIN prizes p ON p.id = rp.prize_id
`

const winnerQuery = `
	SELECT w.id, w.round_id, w.prize_id, w.participant_id, w.drawn_at,
	       r.name, p.name, p.image_url, pa.code, pa.name, pa.phone
	FROM winners w
	JOIN draw_rounds r ON r.id = w.round_id
	JOIN prizes p ON p.id = w.prize_id
	JOIN participants pa ON pa.id = w.participant_id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(row scanner) (models.Round, error) {
	var r models.Round
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Date, &r.IsActive, &r.IsCompleted, &r.Order, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanAllocation(row scanner) (models.RoundPrize, error) {
	var a models.RoundPrize
	err := row.Scan(&a.ID, &a.RoundID, &a.PrizeID, &a.Quantity, &a.Position, &a.CreatedAt,
		&a.Prize.ID, &a.Prize.Name, &a.Prize.Description, &a.Prize.ImageURL, &a.Prize.CreatedAt, &a.Prize.UpdatedAt)
	return a, err
}

func scanWinner(row scanner) (models.WinnerRecord, error) {
	var w models.WinnerRecord
	err := row.Scan(&w.ID, &w.RoundID, &w.PrizeID, &w.RegistrantID, &w.DrawnAt,
		&w.RoundName, &w.PrizeName, &w.PrizeImageURL, &w.RegistrantCode, &w.RegistrantName, &w.RegistrantPhone)
	return w, err
}

func scanRegistrant(row scanner) (models.Registrant, error) {
	var r models.Registrant
	err := row.Scan(&r.ID, &r.RoundID, &r.Code, &r.Name, &r.Phone, &r.CreatedAt)
	return r, err
}

func (r reader) GetRound(ctx context.Context, id string) (models.Round, error) {
	round, err := scanRound(r.q.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM draw_rounds WHERE id = $1`, id))
	if err != nil {
		return models.Round{}, fmt.Errorf("round %s: %w", id, mapErr(err))
	}

	rows, err := r.q.QueryContext(ctx, allocationQuery+` WHERE rp.round_id = $1 ORDER BY rp.position, rp.created_at`, id)
	if err != nil {
		return models.Round{}, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return models.Round{}, err
		}
		round.Prizes = append(round.Prizes, a)
	}
	return round, rows.Err()
}

func (r reader) GetRoundPrize(ctx context.Context, roundID, prizeID string) (models.RoundPrize, error) {
	a, err := scanAllocation(r.q.QueryRowContext(ctx, allocationQuery+` WHERE rp.round_id = $1 AND rp.prize_id = $2`, roundID, prizeID))
	if err != nil {
		return models.RoundPrize{}, fmt.Errorf("prize %s in round %s: %w", prizeID, roundID, mapErr(err))
	}
	return a, nil
}

func (r reader) CountWinners(ctx context.Context, roundID, prizeID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM winners
		WHERE round_id = $1 AND ($2::text = '' OR prize_id = $2)
	`, roundID, prizeID).Scan(&n)
	return n, err
}

func (r reader) CountRegistrants(ctx context.Context, roundID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE round_id = $1`, roundID).Scan(&n)
	return n, err
}

func (r reader) EligibleRegistrants(ctx context.Context, roundID string) ([]models.Registrant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT pa.id, pa.round_id, pa.code, pa.name, pa.phone, pa.created_at
		FROM participants pa
		WHERE pa.round_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM winners w
		      WHERE w.round_id = pa.round_id AND w.participant_id = pa.id
		  )
		ORDER BY pa.created_at, pa.code
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Registrant
	for rows.Next() {
		reg, err := scanRegistrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r reader) RoundWinners(ctx context.Context, roundID string) ([]models.WinnerRecord, error) {
	rows, err := r.q.QueryContext(ctx, winnerQuery+` WHERE w.round_id = $1 ORDER BY w.drawn_at, w.id`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WinnerRecord
	for rows.Next() {
		w, err := scanWinner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

var _ store.Reader = reader{}
