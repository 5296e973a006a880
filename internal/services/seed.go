package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/logger"
)

const seedRegistrantsPerRound = 50

var seedPrizes = []PrizeInput{
	{Name: "Giải nhất", Description: "1 giải nhất trị giá 10.000.000đ"},
	{Name: "Giải nhì", Description: "2 giải nhì, mỗi giải trị giá 5.000.000đ"},
	{Name: "Giải ba", Description: "3 giải ba, mỗi giải trị giá 3.000.000đ"},
	{Name: "Giải khuyến khích", Description: "10 giải khuyến khích, mỗi giải trị giá 500.000đ"},
}

// seedRounds lists, per round, the allocated quantity keyed by index into seedPrizes.
var seedRounds = []struct {
	description string
	quantities  [][2]int
}{
	{"10 giải khuyến khích, 1 giải ba", [][2]int{{3, 10}, {2, 1}}},
	{"10 giải khuyến khích, 1 giải ba", [][2]int{{3, 10}, {2, 1}}},
	{"10 giải khuyến khích, 1 giải ba, 1 giải nhì", [][2]int{{3, 10}, {2, 1}, {1, 1}}},
	{"10 giải khuyến khích, 1 giải nhì", [][2]int{{3, 10}, {1, 1}}},
	{"10 giải khuyến khích, 1 giải nhất", [][2]int{{3, 10}, {0, 1}}},
}

// SeedDefaults loads the demo data set: four prizes, five rounds with 50
// registrants each, round one active. It does nothing when rounds exist.
func (s *LotteryService) SeedDefaults(ctx context.Context) error {
	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return storageError(err, "", "")
	}
	if len(rounds) > 0 {
		logger.Infof("seed: %d rounds already present, skipping", len(rounds))
		return nil
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}

	prizeIDs := make([]string, 0, len(seedPrizes))
	for _, in := range seedPrizes {
		p, err := s.CreatePrize(ctx, in)
		if err != nil {
			return err
		}
		prizeIDs = append(prizeIDs, p.ID)
	}

	var firstRound string
	for i, def := range seedRounds {
		in := RoundInput{
			Name:        fmt.Sprintf("Lần %d", i+1),
			Description: def.description,
			Order:       i + 1,
		}
		for _, q := range def.quantities {
			in.Prizes = append(in.Prizes, AllocationInput{PrizeID: prizeIDs[q[0]], Quantity: q[1]})
		}
		round, err := s.CreateRound(ctx, in)
		if err != nil {
			return err
		}
		if _, err := s.ReplaceRegistrants(ctx, round.ID, s.demoRegistrants(i+1, settings.CodeLength)); err != nil {
			return err
		}
		if firstRound == "" {
			firstRound = round.ID
		}
	}

	if _, err := s.ActivateRound(ctx, firstRound); err != nil {
		return err
	}
	logger.Infof("seed: created %d prizes and %d rounds", len(seedPrizes), len(seedRounds))
	return nil
}

// demoRegistrants builds registrants whose codes are the round number
// followed by a zero padded sequence, codeLength characters in total.
func (s *LotteryService) demoRegistrants(roundNumber, codeLength int) []RegistrantInput {
	prefix := fmt.Sprint(roundNumber)
	width := max(codeLength-len(prefix), 2)
	rows := make([]RegistrantInput, seedRegistrantsPerRound)
	for j := range rows {
		var phone strings.Builder
		phone.WriteString("090")
		for range 7 {
			phone.WriteByte(byte('0' + s.rng.IntN(10)))
		}
		rows[j] = RegistrantInput{
			Code:  fmt.Sprintf("%s%0*d", prefix, width, j+1),
			Name:  fmt.Sprintf("Người tham gia %d", j+1),
			Phone: phone.String(),
		}
	}
	return rows
}
