// Package store defines the entity store the lottery core runs against.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"luckydraw/internal/models"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint,
	// e.g. a second winner record for the same registrant in a round.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrBelowDrawn is returned by UpdateRound when an allocation would end up
	// below the winners already drawn for it.
	ErrBelowDrawn = errors.New("store: allocation below drawn winners")
)

// DrawnCount is the number of winners already drawn for one prize of a round.
type DrawnCount struct {
	PrizeID string
	Drawn   int
}

// BelowDrawnError lists the allocations an UpdateRound would leave under
// their drawn count, in the order their first winner was drawn. A removed
// allocation counts as quantity zero.
type BelowDrawnError struct {
	RoundID string
	Prizes  []DrawnCount
}

func (e *BelowDrawnError) Error() string {
	parts := make([]string, len(e.Prizes))
	for i, p := range e.Prizes {
		parts[i] = fmt.Sprintf("%s (%d drawn)", p.PrizeID, p.Drawn)
	}
	return fmt.Sprintf("round %s: %s: %v", e.RoundID, strings.Join(parts, ", "), ErrBelowDrawn)
}

func (e *BelowDrawnError) Is(target error) bool { return target == ErrBelowDrawn }

// BelowDrawn returns a *BelowDrawnError naming every entry of drawn whose
// prize gets fewer units under next, or nil when none does.
func BelowDrawn(roundID string, drawn []DrawnCount, next []models.RoundPrize) error {
	quantity := make(map[string]int, len(next))
	for _, a := range next {
		quantity[a.PrizeID] = a.Quantity
	}
	var below []DrawnCount
	for _, d := range drawn {
		if quantity[d.PrizeID] < d.Drawn {
			below = append(below, d)
		}
	}
	if len(below) == 0 {
		return nil
	}
	return &BelowDrawnError{RoundID: roundID, Prizes: below}
}

// Reader holds the queries used by the draw engine and the statistics aggregator.
type Reader interface {
	// GetRound returns the round with its allocations in creation order.
	GetRound(ctx context.Context, id string) (models.Round, error)
	GetRoundPrize(ctx context.Context, roundID, prizeID string) (models.RoundPrize, error)
	// CountWinners counts winner records of a round; an empty prizeID counts every prize.
	CountWinners(ctx context.Context, roundID, prizeID string) (int, error)
	CountRegistrants(ctx context.Context, roundID string) (int, error)
	// EligibleRegistrants returns the round's registrants that have not won in that round.
	EligibleRegistrants(ctx context.Context, roundID string) ([]models.Registrant, error)
	// RoundWinners returns the round's winner records ordered by draw time.
	RoundWinners(ctx context.Context, roundID string) ([]models.WinnerRecord, error)
}

// DrawTx is the view a draw gets inside its atomic unit.
type DrawTx interface {
	Reader
	InsertWinner(ctx context.Context, w models.WinnerRecord) error
}

// Store is the full entity store.
type Store interface {
	Reader

	// WithDrawLock runs fn as one atomic unit serialized against other draws on
	// the same (round, prize). Writes made through tx are discarded if fn fails.
	WithDrawLock(ctx context.Context, roundID, prizeID string, fn func(tx DrawTx) error) error

	CreatePrize(ctx context.Context, p models.Prize) (models.Prize, error)
	UpdatePrize(ctx context.Context, p models.Prize) (models.Prize, error)
	GetPrize(ctx context.Context, id string) (models.Prize, error)
	ListPrizes(ctx context.Context) ([]models.Prize, error)
	// DeletePrize removes the prize with its allocations and winner records.
	DeletePrize(ctx context.Context, id string) error

	// CreateRound inserts the round and its allocations (r.Prizes).
	CreateRound(ctx context.Context, r models.Round) (models.Round, error)
	// UpdateRound rewrites the round's fields and replaces its allocations,
	// serialized against draws of the round. It fails with *BelowDrawnError
	// when an allocation would drop below its drawn winners. IsActive is not
	// touched; use ActivateRound.
	UpdateRound(ctx context.Context, r models.Round) (models.Round, error)
	ListRounds(ctx context.Context) ([]models.Round, error)
	// DeleteRound removes the round with its registrants, allocations and winner records.
	DeleteRound(ctx context.Context, id string) error
	// ActivateRound deactivates every other round and activates id atomically.
	ActivateRound(ctx context.Context, id string) error

	// ReplaceRegistrants deletes the round's winner records and registrants and
	// inserts the new set, atomically.
	ReplaceRegistrants(ctx context.Context, roundID string, registrants []models.Registrant) error
	ListRegistrants(ctx context.Context, roundID string, offset, limit int) ([]models.Registrant, int, error)

	// ListWinners returns winner records newest first and the total match count.
	ListWinners(ctx context.Context, filter models.WinnerFilter, offset, limit int) ([]models.WinnerRecord, int, error)

	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) (models.Settings, error)
}
