package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"luckydraw/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLotteryService_Prizes(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	t.Run("Test create requires a name", func(t *testing.T) {
		_, err := service.CreatePrize(ctx, PrizeInput{Name: "  "})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Test update and delete cascade", func(t *testing.T) {
		round, prizes := setupRound(t, service, "cascade", 3, 1, 1)
		_, err := service.Draw(ctx, round.ID, prizes[0])
		require.NoError(t, err)

		updated, err := service.UpdatePrize(ctx, prizes[0], PrizeInput{Name: "Renamed", ImageURL: "/img/p.jpg"})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)

		stats, err := service.Statistics(ctx, round.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", stats.DrawnPrizes[0].PrizeName)

		require.NoError(t, service.DeletePrize(ctx, prizes[0]))
		_, err = service.GetPrize(ctx, prizes[0])
		assert.ErrorIs(t, err, ErrPrizeNotFound)

		stats, err = service.Statistics(ctx, round.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalPrizes)
		assert.Empty(t, stats.DrawnPrizes)
	})

	t.Run("Test update unknown prize", func(t *testing.T) {
		_, err := service.UpdatePrize(ctx, "missing", PrizeInput{Name: "x"})
		assert.ErrorIs(t, err, ErrPrizeNotFound)
		assert.ErrorIs(t, service.DeletePrize(ctx, "missing"), ErrPrizeNotFound)
	})
}

func TestLotteryService_Rounds(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	p, err := service.CreatePrize(ctx, PrizeInput{Name: "Mug"})
	require.NoError(t, err)

	t.Run("Test allocation validation", func(t *testing.T) {
		_, err := service.CreateRound(ctx, RoundInput{Name: "bad", Prizes: []AllocationInput{{PrizeID: p.ID, Quantity: 0}}})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = service.CreateRound(ctx, RoundInput{Name: "dup", Prizes: []AllocationInput{
			{PrizeID: p.ID, Quantity: 1}, {PrizeID: p.ID, Quantity: 2},
		}})
		assert.ErrorIs(t, err, &Error{Kind: KindInvalidInput, Reason: ReasonDuplicatePrize})

		_, err = service.CreateRound(ctx, RoundInput{Name: "ghost", Prizes: []AllocationInput{{PrizeID: "ghost", Quantity: 1}}})
		assert.ErrorIs(t, err, ErrPrizeNotFound)

		_, err = service.CreateRound(ctx, RoundInput{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Test new rounds are inactive and dated", func(t *testing.T) {
		r, err := service.CreateRound(ctx, RoundInput{Name: "fresh", Prizes: []AllocationInput{{PrizeID: p.ID, Quantity: 2}}})
		require.NoError(t, err)
		assert.False(t, r.IsActive)
		assert.False(t, r.Date.IsZero())
		require.Len(t, r.Prizes, 1)
		assert.Equal(t, "Mug", r.Prizes[0].Prize.Name)
	})

	t.Run("Test quota cannot drop below drawn", func(t *testing.T) {
		round, prizes := setupRound(t, service, "shrink", 5, 3)
		for range 2 {
			_, err := service.Draw(ctx, round.ID, prizes[0])
			require.NoError(t, err)
		}

		_, err := service.UpdateRound(ctx, round.ID, RoundInput{Name: "shrink", Prizes: []AllocationInput{{PrizeID: prizes[0], Quantity: 1}}})
		require.Error(t, err)
		var svcErr *Error
		require.True(t, errors.As(err, &svcErr))
		assert.Equal(t, ReasonQuotaBelowDrawn, svcErr.Reason)
		assert.Equal(t, []string{prizes[0] + " (2 drawn)"}, svcErr.Details)

		_, err = service.UpdateRound(ctx, round.ID, RoundInput{Name: "shrink"})
		assert.ErrorIs(t, err, &Error{Kind: KindInvalidState, Reason: ReasonQuotaBelowDrawn})

		updated, err := service.UpdateRound(ctx, round.ID, RoundInput{Name: "shrunk", Prizes: []AllocationInput{{PrizeID: prizes[0], Quantity: 2}}})
		require.NoError(t, err)
		assert.Equal(t, "shrunk", updated.Name)
		assert.True(t, updated.IsActive)

		_, err = service.Draw(ctx, round.ID, prizes[0])
		assert.ErrorIs(t, err, ErrPrizeQuotaExhausted)
	})

	t.Run("Test shrinking during concurrent draws keeps the quota", func(t *testing.T) {
		round, prizes := setupRound(t, service, "race", 30, 20)
		in := RoundInput{Name: "race", Prizes: []AllocationInput{{PrizeID: prizes[0], Quantity: 5}}}

		shrunk := make(chan error, 1)
		go func() {
			_, err := service.UpdateRound(ctx, round.ID, in)
			shrunk <- err
		}()
		results := drawConcurrently(t, service, round.ID, prizes[0], 20)
		err := <-shrunk

		got, getErr := service.GetRound(ctx, round.ID)
		require.NoError(t, getErr)
		stats, statsErr := service.Statistics(ctx, round.ID)
		require.NoError(t, statsErr)
		drawn := got.Prizes[0].Quantity - stats.RemainingPrizes.ByPrize[0].Remaining
		if err == nil {
			assert.Equal(t, 5, got.Prizes[0].Quantity)
			assert.LessOrEqual(t, len(results.winners), 5)
		} else {
			assert.ErrorIs(t, err, &Error{Kind: KindInvalidState, Reason: ReasonQuotaBelowDrawn})
			assert.Equal(t, 20, got.Prizes[0].Quantity)
			assert.Greater(t, len(results.winners), 5)
		}
		assert.Equal(t, len(results.winners), drawn)
	})

	t.Run("Test update unknown round", func(t *testing.T) {
		_, err := service.UpdateRound(ctx, "missing", RoundInput{Name: "x"})
		assert.ErrorIs(t, err, ErrRoundNotFound)
	})
}

func TestLotteryService_ActivateRound(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	var ids []string
	for i := range 3 {
		r, err := service.CreateRound(ctx, RoundInput{Name: fmt.Sprintf("Lần %d", i+1), Order: i + 1})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	_, err := service.CurrentRound(ctx)
	assert.ErrorIs(t, err, ErrRoundNotFound)

	for _, id := range ids {
		_, err := service.ActivateRound(ctx, id)
		require.NoError(t, err)

		rounds, err := service.ListRounds(ctx)
		require.NoError(t, err)
		active := 0
		for _, r := range rounds {
			if r.IsActive {
				active++
				assert.Equal(t, id, r.ID)
			}
		}
		assert.Equal(t, 1, active)

		current, err := service.CurrentRound(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, current.ID)
	}

	_, err = service.ActivateRound(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoundNotFound)

	t.Run("Test deleting the current round falls back to the active one", func(t *testing.T) {
		_, err := service.UpdateSettings(ctx, SettingsInput{CurrentRoundID: ids[0]})
		require.NoError(t, err)
		require.NoError(t, service.DeleteRound(ctx, ids[0]))

		settings, err := service.GetSettings(ctx)
		require.NoError(t, err)
		assert.Empty(t, settings.CurrentRoundID)

		current, err := service.CurrentRound(ctx)
		require.NoError(t, err)
		assert.Equal(t, ids[2], current.ID)
	})
}

func TestLotteryService_Registrants(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	round, prizes := setupRound(t, service, "reg", 25, 2)

	t.Run("Test duplicate codes reject the whole upload", func(t *testing.T) {
		_, err := service.ReplaceRegistrants(ctx, round.ID, []RegistrantInput{
			{Code: "A1"}, {Code: "B2"}, {Code: " A1 "}, {Code: "C3"}, {Code: "B2"},
		})
		require.Error(t, err)
		var svcErr *Error
		require.True(t, errors.As(err, &svcErr))
		assert.Equal(t, ReasonDuplicateCode, svcErr.Reason)
		assert.Equal(t, []string{"A1", "B2"}, svcErr.Details)

		page, err := service.ListRegistrants(ctx, round.ID, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 25, page.Total)
	})

	t.Run("Test empty code", func(t *testing.T) {
		_, err := service.ReplaceRegistrants(ctx, round.ID, []RegistrantInput{{Code: "A1"}, {Code: ""}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Test pagination", func(t *testing.T) {
		page, err := service.ListRegistrants(ctx, round.ID, 3, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, page.Page)
		assert.Equal(t, 3, page.TotalPages)
		assert.Len(t, page.Data, 5)

		page, err = service.ListRegistrants(ctx, round.ID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Len(t, page.Data, defaultPageSize)
		page, err = service.ListRegistrants(ctx, round.ID, math.MaxInt/maxPageSize+2, maxPageSize)
		require.NoError(t, err)
		assert.Empty(t, page.Data)
		assert.Equal(t, 25, page.Total)
	})

	t.Run("Test replacing clears the round's winners", func(t *testing.T) {
		_, err := service.Draw(ctx, round.ID, prizes[0])
		require.NoError(t, err)

		n, err := service.ReplaceRegistrants(ctx, round.ID, []RegistrantInput{{Code: "N1", Name: " New "}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stats, err := service.Statistics(ctx, round.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.RemainingPrizes.Total)

		page, err := service.ListRegistrants(ctx, round.ID, 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "New", page.Data[0].Name)
	})

	t.Run("Test all registrants ignores paging", func(t *testing.T) {
		all, err := service.AllRegistrants(ctx, round.ID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "N1", all[0].Code)
	})

	t.Run("Test unknown round", func(t *testing.T) {
		_, err := service.ReplaceRegistrants(ctx, "missing", nil)
		assert.ErrorIs(t, err, ErrRoundNotFound)

		_, err = service.AllRegistrants(ctx, "missing")
		assert.ErrorIs(t, err, ErrRoundNotFound)
	})
}

func TestLotteryService_Winners(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	round, prizes := setupRound(t, service, "win", 6, 3, 3)
	for _, p := range []string{prizes[0], prizes[1], prizes[0]} {
		_, err := service.Draw(ctx, round.ID, p)
		require.NoError(t, err)
	}

	page, err := service.ListWinners(ctx, models.WinnerFilter{RoundID: round.ID}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.True(t, page.Data[0].DrawnAt.After(page.Data[1].DrawnAt))

	byPrize, err := service.AllWinners(ctx, models.WinnerFilter{RoundID: round.ID, PrizeID: prizes[0]})
	require.NoError(t, err)
	assert.Len(t, byPrize, 2)
	for _, w := range byPrize {
		assert.Equal(t, "win prize 1", w.PrizeName)
		assert.NotEmpty(t, w.RegistrantCode)
	}
}

func TestLotteryService_Settings(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(WithCodeLength(9))

	settings, err := service.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, settings.CodeLength)

	_, err = service.UpdateSettings(ctx, SettingsInput{CodeLength: 5})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = service.UpdateSettings(ctx, SettingsInput{CodeLength: 11})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = service.UpdateSettings(ctx, SettingsInput{CurrentRoundID: "missing"})
	assert.ErrorIs(t, err, ErrRoundNotFound)

	saved, err := service.UpdateSettings(ctx, SettingsInput{CodeLength: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, saved.CodeLength)

	saved, err = service.UpdateSettings(ctx, SettingsInput{})
	require.NoError(t, err)
	assert.Equal(t, 6, saved.CodeLength)
}

func TestLotteryService_SeedDefaults(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(WithSource(&seqSource{}))
	require.NoError(t, service.SeedDefaults(ctx))

	prizes, err := service.ListPrizes(ctx)
	require.NoError(t, err)
	assert.Len(t, prizes, 4)

	rounds, err := service.ListRounds(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 5)
	assert.Equal(t, "Lần 1", rounds[0].Name)
	assert.True(t, rounds[0].IsActive)
	assert.Len(t, rounds[2].Prizes, 3)
	for _, r := range rounds[1:] {
		assert.False(t, r.IsActive)
	}

	page, err := service.ListRegistrants(ctx, rounds[4].ID, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, page.Total)
	assert.Equal(t, "50000001", page.Data[0].Code)
	assert.Equal(t, "0900000000", page.Data[0].Phone)

	current, err := service.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, rounds[0].ID, current.ID)

	t.Run("Test seeding twice is a no-op", func(t *testing.T) {
		require.NoError(t, service.SeedDefaults(ctx))
		again, err := service.ListRounds(ctx)
		require.NoError(t, err)
		assert.Len(t, again, 5)
	})

	t.Run("Test seeded round can be drawn", func(t *testing.T) {
		result, err := service.Draw(ctx, rounds[0].ID, rounds[0].Prizes[0].PrizeID)
		require.NoError(t, err)
		assert.Equal(t, 10, result.Statistics.RemainingPrizes.Total)
	})
}
