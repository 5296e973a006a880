package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

func seed(t *testing.T) (*Store, models.Round, models.Prize) {
	t.Helper()
	ctx := context.Background()
	s := New()

	prize, err := s.CreatePrize(ctx, models.Prize{Name: "Mug"})
	require.NoError(t, err)
	round, err := s.CreateRound(ctx, models.Round{Name: "Lần 1", Prizes: []models.RoundPrize{{PrizeID: prize.ID, Quantity: 2}}})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceRegistrants(ctx, round.ID, []models.Registrant{
		{Code: "A1", Name: "An"}, {Code: "B2", Name: "Binh"},
	}))
	return s, round, prize
}

func winnerFor(round models.Round, prize models.Prize, reg models.Registrant, at time.Time) models.WinnerRecord {
	return models.WinnerRecord{RoundID: round.ID, PrizeID: prize.ID, RegistrantID: reg.ID, DrawnAt: at}
}

func TestStore_WithDrawLock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

	t.Run("Test committed winner is visible", func(t *testing.T) {
		s, round, prize := seed(t)
		regs, err := s.EligibleRegistrants(ctx, round.ID)
		require.NoError(t, err)

		err = s.WithDrawLock(ctx, round.ID, prize.ID, func(tx store.DrawTx) error {
			return tx.InsertWinner(ctx, winnerFor(round, prize, regs[0], at))
		})
		require.NoError(t, err)

		n, err := s.CountWinners(ctx, round.ID, prize.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		eligible, err := s.EligibleRegistrants(ctx, round.ID)
		require.NoError(t, err)
		require.Len(t, eligible, 1)
		assert.Equal(t, "B2", eligible[0].Code)

		winners, err := s.RoundWinners(ctx, round.ID)
		require.NoError(t, err)
		require.Len(t, winners, 1)
		assert.Equal(t, "A1", winners[0].RegistrantCode)
		assert.Equal(t, "Mug", winners[0].PrizeName)
		assert.NotEmpty(t, winners[0].ID)
	})

	t.Run("Test failed unit discards staged winners", func(t *testing.T) {
		s, round, prize := seed(t)
		regs, err := s.EligibleRegistrants(ctx, round.ID)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.WithDrawLock(ctx, round.ID, prize.ID, func(tx store.DrawTx) error {
			require.NoError(t, tx.InsertWinner(ctx, winnerFor(round, prize, regs[0], at)))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		n, err := s.CountWinners(ctx, round.ID, "")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Test duplicate winner in one round", func(t *testing.T) {
		s, round, prize := seed(t)
		regs, err := s.EligibleRegistrants(ctx, round.ID)
		require.NoError(t, err)

		err = s.WithDrawLock(ctx, round.ID, prize.ID, func(tx store.DrawTx) error {
			if err := tx.InsertWinner(ctx, winnerFor(round, prize, regs[0], at)); err != nil {
				return err
			}
			return tx.InsertWinner(ctx, winnerFor(round, prize, regs[0], at))
		})
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("Test registrant of another round is rejected", func(t *testing.T) {
		s, round, prize := seed(t)
		other, err := s.CreateRound(ctx, models.Round{Name: "Lần 2", Prizes: []models.RoundPrize{{PrizeID: prize.ID, Quantity: 1}}})
		require.NoError(t, err)
		require.NoError(t, s.ReplaceRegistrants(ctx, other.ID, []models.Registrant{{Code: "Z9"}}))
		outsiders, err := s.EligibleRegistrants(ctx, other.ID)
		require.NoError(t, err)

		err = s.WithDrawLock(ctx, round.ID, prize.ID, func(tx store.DrawTx) error {
			return tx.InsertWinner(ctx, winnerFor(round, prize, outsiders[0], at))
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Test cancelled context", func(t *testing.T) {
		s, round, prize := seed(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := s.WithDrawLock(cctx, round.ID, prize.ID, func(store.DrawTx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestStore_Rounds(t *testing.T) {
	ctx := context.Background()

	t.Run("Test duplicate and unknown allocations", func(t *testing.T) {
		s, _, prize := seed(t)
		_, err := s.CreateRound(ctx, models.Round{Name: "x", Prizes: []models.RoundPrize{{PrizeID: prize.ID, Quantity: 1}, {PrizeID: prize.ID, Quantity: 1}}})
		assert.ErrorIs(t, err, store.ErrDuplicate)
		_, err = s.CreateRound(ctx, models.Round{Name: "y", Prizes: []models.RoundPrize{{PrizeID: "ghost", Quantity: 1}}})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Test only one round is active", func(t *testing.T) {
		s, first, _ := seed(t)
		second, err := s.CreateRound(ctx, models.Round{Name: "Lần 2", Order: 2})
		require.NoError(t, err)

		require.NoError(t, s.ActivateRound(ctx, first.ID))
		require.NoError(t, s.ActivateRound(ctx, second.ID))

		rounds, err := s.ListRounds(ctx)
		require.NoError(t, err)
		require.Len(t, rounds, 2)
		assert.False(t, rounds[0].IsActive)
		assert.True(t, rounds[1].IsActive)

		assert.ErrorIs(t, s.ActivateRound(ctx, "missing"), store.ErrNotFound)
	})

	t.Run("Test update keeps activation", func(t *testing.T) {
		s, round, prize := seed(t)
		require.NoError(t, s.ActivateRound(ctx, round.ID))
		round.Name = "Renamed"
		round.IsActive = false
		round.Prizes = []models.RoundPrize{{PrizeID: prize.ID, Quantity: 5}}

		updated, err := s.UpdateRound(ctx, round)
		require.NoError(t, err)
		assert.True(t, updated.IsActive)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, 5, updated.Prizes[0].Quantity)
	})

	t.Run("Test update below drawn winners is rejected", func(t *testing.T) {
		s, round, prize := seed(t)
		regs, err := s.EligibleRegistrants(ctx, round.ID)
		require.NoError(t, err)
		require.NoError(t, s.WithDrawLock(ctx, round.ID, prize.ID, func(tx store.DrawTx) error {
			return tx.InsertWinner(ctx, winnerFor(round, prize, regs[0], time.Now()))
		}))

		round.Name = "Shrunk"
		round.Prizes = nil
		_, err = s.UpdateRound(ctx, round)
		require.ErrorIs(t, err, store.ErrBelowDrawn)
		var below *store.BelowDrawnError
		require.True(t, errors.As(err, &below))
		assert.Equal(t, []store.DrawnCount{{PrizeID: prize.ID, Drawn: 1}}, below.Prizes)

		got, err := s.GetRound(ctx, round.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lần 1", got.Name)
		require.Len(t, got.Prizes, 1)
		assert.Equal(t, 2, got.Prizes[0].Quantity)

		round.Prizes = []models.RoundPrize{{PrizeID: prize.ID, Quantity: 1}}
		updated, err := s.UpdateRound(ctx, round)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Prizes[0].Quantity)
	})

	t.Run("Test delete cascades", func(t *testing.T) {
		s, round, prize := seed(t)
		regs, err := s.EligibleRegistrants(ctx, round.ID)
		require.NoError(t, err)
		require.NoError(t, s.WithDrawLock(ctx, round.ID, prize.ID, func(tx store.DrawTx) error {
			return tx.InsertWinner(ctx, winnerFor(round, prize, regs[0], time.Now()))
		}))
		_, err = s.SaveSettings(ctx, models.Settings{CurrentRoundID: round.ID, CodeLength: 8})
		require.NoError(t, err)

		require.NoError(t, s.DeleteRound(ctx, round.ID))

		_, err = s.GetRound(ctx, round.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, total, err := s.ListRegistrants(ctx, round.ID, 0, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
		_, total, err = s.ListWinners(ctx, models.WinnerFilter{}, 0, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
		settings, err := s.GetSettings(ctx)
		require.NoError(t, err)
		assert.Empty(t, settings.CurrentRoundID)
		assert.Equal(t, 8, settings.CodeLength)
	})
}

func TestStore_ReplaceRegistrants(t *testing.T) {
	ctx := context.Background()
	s, round, _ := seed(t)

	err := s.ReplaceRegistrants(ctx, round.ID, []models.Registrant{{Code: "C3"}, {Code: "C3"}})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	n, err := s.CountRegistrants(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, s.ReplaceRegistrants(ctx, "missing", nil), store.ErrNotFound)
}

func TestPage(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, page(in, 2, 2))
	assert.Equal(t, []int{5}, page(in, 4, 10))
	assert.Equal(t, []int{}, page(in, 5, 10))
	assert.Equal(t, in, page(in, 0, 0))
	assert.Equal(t, []int{}, page(in, -200, 200))
	assert.Equal(t, []int{}, page(in, math.MaxInt, 200))
	assert.Equal(t, []int{2, 3, 4, 5}, page(in, 1, math.MaxInt))
}
