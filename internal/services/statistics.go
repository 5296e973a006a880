package services

import (
	"context"

	"luckydraw/internal/metrics"
	"luckydraw/internal/models"

	"github.com/google/logger"
)

// Statistics summarizes a round: total and remaining quota per allocation,
// and the winners grouped by prize in draw order. It has no side effects.
func (s *LotteryService) Statistics(ctx context.Context, roundID string) (*models.RoundStatistics, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, fromStore(err, ReasonRound, roundID, "")
	}
	winners, err := s.store.RoundWinners(ctx, roundID)
	if err != nil {
		return nil, storageError(err, roundID, "")
	}
	stats := aggregate(round, winners)
	return &stats, nil
}

// aggregate builds the statistics of round from its winner records, which
// must be ordered by draw time.
func aggregate(round models.Round, winners []models.WinnerRecord) models.RoundStatistics {
	drawn := make(map[string]int, len(round.Prizes))
	for _, w := range winners {
		drawn[w.PrizeID]++
	}

	stats := models.RoundStatistics{
		RoundID:         round.ID,
		RemainingPrizes: models.RemainingPrizes{ByPrize: []models.PrizeRemaining{}},
		DrawnPrizes:     []models.DrawnPrize{},
	}
	for _, alloc := range round.Prizes {
		remaining := alloc.Quantity - drawn[alloc.PrizeID]
		if remaining < 0 {
			logger.Errorf("statistics: round %s prize %s overshot its quantity %d by %d",
				round.ID, alloc.PrizeID, alloc.Quantity, -remaining)
			metrics.InvariantViolation("quota_overshoot")
			remaining = 0
		}
		stats.TotalPrizes += alloc.Quantity
		stats.RemainingPrizes.Total += remaining
		stats.RemainingPrizes.ByPrize = append(stats.RemainingPrizes.ByPrize, models.PrizeRemaining{
			PrizeID:   alloc.PrizeID,
			PrizeName: alloc.Prize.Name,
			Total:     alloc.Quantity,
			Remaining: remaining,
		})
	}

	groups := make(map[string]int)
	for _, w := range winners {
		i, ok := groups[w.PrizeID]
		if !ok {
			i = len(stats.DrawnPrizes)
			groups[w.PrizeID] = i
			stats.DrawnPrizes = append(stats.DrawnPrizes, models.DrawnPrize{
				PrizeID:   w.PrizeID,
				PrizeName: w.PrizeName,
				Winners:   []models.DrawnWinner{},
			})
		}
		stats.DrawnPrizes[i].Winners = append(stats.DrawnPrizes[i].Winners, models.DrawnWinner{
			ID:            w.ID,
			RegistrantID:  w.RegistrantID,
			Code:          w.RegistrantCode,
			Name:          w.RegistrantName,
			Phone:         w.RegistrantPhone,
			DrawnAt:       w.DrawnAt,
			PrizeImageURL: w.PrizeImageURL,
		})
	}
	return stats
}

// CheckAvailableParticipants reports whether the round still has registrants
// who can be drawn, with the reason when it does not.
func (s *LotteryService) CheckAvailableParticipants(ctx context.Context, roundID string) (*models.Availability, error) {
	if _, err := s.store.GetRound(ctx, roundID); err != nil {
		return nil, fromStore(err, ReasonRound, roundID, "")
	}
	total, err := s.store.CountRegistrants(ctx, roundID)
	if err != nil {
		return nil, storageError(err, roundID, "")
	}
	if total == 0 {
		return unavailable(ReasonNoRegistrants), nil
	}
	pool, err := eligiblePool(ctx, s.store, roundID)
	if err != nil {
		return nil, storageError(err, roundID, "")
	}
	if len(pool) == 0 {
		return unavailable(ReasonAllRegistrantsWon), nil
	}
	return &models.Availability{CanDraw: true}, nil
}

func unavailable(reason Reason) *models.Availability {
	return &models.Availability{CanDraw: false, Reason: string(reason), Message: messages[reason]}
}
