package services

import (
	"context"
	"errors"
	"time"

	"luckydraw/internal/metrics"
	"luckydraw/internal/models"
	"luckydraw/internal/store"

	"github.com/google/logger"
	"github.com/google/uuid"
)

// DefaultCodeLength is used when settings carry no code length.
const DefaultCodeLength = 8

// LotteryService runs draws and administers rounds, prizes and registrants.
type LotteryService struct {
	store      store.Store
	rng        Source
	clock      Clock
	codeLength int
}

// Option configures a LotteryService.
type Option func(*LotteryService)

// WithSource replaces the random source used to pick winners.
func WithSource(src Source) Option {
	return func(s *LotteryService) { s.rng = src }
}

// WithClock replaces the clock that stamps winner records.
func WithClock(c Clock) Option {
	return func(s *LotteryService) { s.clock = c }
}

// WithCodeLength sets the code length reported when settings carry none.
func WithCodeLength(n int) Option {
	return func(s *LotteryService) { s.codeLength = n }
}

// NewLotteryService creates a LotteryService on top of st.
func NewLotteryService(st store.Store, opts ...Option) *LotteryService {
	s := &LotteryService{
		store:      st,
		rng:        mathSource{},
		clock:      systemClock{},
		codeLength: DefaultCodeLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draw picks one eligible registrant of the round uniformly at random, records
// them as a winner of prizeID and returns the record with fresh statistics.
//
// Preconditions are checked in order: round exists, round active, round not
// completed, prize allocated, quota left, somebody eligible. The check and the
// write run under the store's draw lock, so concurrent draws can neither
// overshoot a quota nor pick the same registrant twice.
func (s *LotteryService) Draw(ctx context.Context, roundID, prizeID string) (result *models.DrawResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDraw(drawOutcome(err), time.Since(start))
	}()

	if roundID == "" || prizeID == "" {
		return nil, invalidInput(ReasonValidation, "roundId and prizeId are required")
	}

	var (
		winner   models.WinnerRecord
		snapshot models.RoundStatistics
	)
	err = s.store.WithDrawLock(ctx, roundID, prizeID, func(tx store.DrawTx) error {
		round, w, err := s.pick(ctx, tx, roundID, prizeID)
		if err != nil {
			return err
		}
		prior, err := tx.RoundWinners(ctx, roundID)
		if err != nil {
			return storageError(err, roundID, prizeID)
		}
		if err := tx.InsertWinner(ctx, w); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return &Error{Kind: KindConflict, Reason: ReasonDuplicateWinner, RoundID: roundID, PrizeID: prizeID, Err: err}
			}
			return storageError(err, roundID, prizeID)
		}
		winner = w
		snapshot = aggregate(round, append(prior, w))
		return nil
	})
	if err != nil {
		err = fromStore(err, ReasonRound, roundID, prizeID)
		var svcErr *Error
		if errors.As(err, &svcErr) && (svcErr.Kind == KindStorage || svcErr.Kind == KindConflict) {
			logger.Warningf("draw: round %s prize %s failed: %v", roundID, prizeID, err)
		}
		return nil, err
	}

	stats, statsErr := s.Statistics(ctx, roundID)
	if statsErr != nil {
		// The winner is committed; report what the draw itself saw.
		logger.Warningf("draw: statistics for round %s after commit: %v", roundID, statsErr)
		stats = &snapshot
	}
	logger.Infof("draw: round %s prize %s won by %s (%s), %d left in round",
		roundID, prizeID, winner.RegistrantCode, winner.RegistrantID, stats.RemainingPrizes.Total)

	return &models.DrawResult{Winner: winner, Statistics: *stats}, nil
}

// pick validates the draw preconditions inside the atomic unit and builds the
// winner record for a uniformly chosen eligible registrant.
func (s *LotteryService) pick(ctx context.Context, tx store.Reader, roundID, prizeID string) (models.Round, models.WinnerRecord, error) {
	round, err := tx.GetRound(ctx, roundID)
	if err != nil {
		return models.Round{}, models.WinnerRecord{}, fromStore(err, ReasonRound, roundID, "")
	}
	if !round.IsActive {
		return round, models.WinnerRecord{}, newError(KindInvalidState, ReasonRoundNotActive, roundID, prizeID)
	}
	if round.IsCompleted {
		return round, models.WinnerRecord{}, newError(KindInvalidState, ReasonRoundCompleted, roundID, prizeID)
	}

	alloc, err := tx.GetRoundPrize(ctx, roundID, prizeID)
	if err != nil {
		return round, models.WinnerRecord{}, fromStore(err, ReasonPrizeInRound, roundID, prizeID)
	}
	remaining, err := remainingQuota(ctx, tx, alloc)
	if err != nil {
		return round, models.WinnerRecord{}, storageError(err, roundID, prizeID)
	}
	if remaining == 0 {
		return round, models.WinnerRecord{}, newError(KindExhausted, ReasonPrizeQuota, roundID, prizeID)
	}

	pool, err := eligiblePool(ctx, tx, roundID)
	if err != nil {
		return round, models.WinnerRecord{}, storageError(err, roundID, prizeID)
	}
	if len(pool) == 0 {
		total, err := tx.CountRegistrants(ctx, roundID)
		if err != nil {
			return round, models.WinnerRecord{}, storageError(err, roundID, prizeID)
		}
		if total == 0 {
			return round, models.WinnerRecord{}, newError(KindEmpty, ReasonNoRegistrants, roundID, prizeID)
		}
		return round, models.WinnerRecord{}, newError(KindExhausted, ReasonAllRegistrantsWon, roundID, prizeID)
	}

	chosen := pool[s.rng.IntN(len(pool))]
	return round, models.WinnerRecord{
		ID:              uuid.NewString(),
		RoundID:         roundID,
		PrizeID:         prizeID,
		RegistrantID:    chosen.ID,
		DrawnAt:         s.clock.Now().UTC(),
		RoundName:       round.Name,
		PrizeName:       alloc.Prize.Name,
		PrizeImageURL:   alloc.Prize.ImageURL,
		RegistrantCode:  chosen.Code,
		RegistrantName:  chosen.Name,
		RegistrantPhone: chosen.Phone,
	}, nil
}

// remainingQuota is the allocation quantity minus winners already recorded,
// floored at zero. A negative value means stored data broke the quota.
func remainingQuota(ctx context.Context, r store.Reader, alloc models.RoundPrize) (int, error) {
	drawn, err := r.CountWinners(ctx, alloc.RoundID, alloc.PrizeID)
	if err != nil {
		return 0, err
	}
	remaining := alloc.Quantity - drawn
	if remaining < 0 {
		logger.Errorf("quota: round %s prize %s has %d winners for quantity %d",
			alloc.RoundID, alloc.PrizeID, drawn, alloc.Quantity)
		metrics.InvariantViolation("quota_overshoot")
		return 0, nil
	}
	return remaining, nil
}

// eligiblePool returns the round's registrants without a win in that round.
// Registrants of other rounds are never returned.
func eligiblePool(ctx context.Context, r store.Reader, roundID string) ([]models.Registrant, error) {
	regs, err := r.EligibleRegistrants(ctx, roundID)
	if err != nil {
		return nil, err
	}
	pool := regs[:0:0]
	for _, reg := range regs {
		if reg.RoundID != roundID {
			logger.Errorf("eligibility: registrant %s of round %s returned for round %s", reg.ID, reg.RoundID, roundID)
			metrics.InvariantViolation("cross_round_registrant")
			continue
		}
		pool = append(pool, reg)
	}
	return pool, nil
}

func drawOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Reason != "" {
		return string(svcErr.Reason)
	}
	return "error"
}
