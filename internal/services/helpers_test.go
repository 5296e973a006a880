package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
	"luckydraw/internal/store/memory"

	"github.com/stretchr/testify/require"
)

// seqSource returns the queued indexes in order, modulo n, then zeros.
type seqSource struct {
	mu    sync.Mutex
	picks []int
	calls []int
}

func (s *seqSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, n)
	if len(s.picks) == 0 {
		return 0
	}
	p := s.picks[0] % n
	s.picks = s.picks[1:]
	return p
}

// stepClock advances one second per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// failingStore makes every InsertWinner inside a draw return err.
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) WithDrawLock(ctx context.Context, roundID, prizeID string, fn func(tx store.DrawTx) error) error {
	return f.Store.WithDrawLock(ctx, roundID, prizeID, func(tx store.DrawTx) error {
		return fn(failingTx{DrawTx: tx, err: f.err})
	})
}

type failingTx struct {
	store.DrawTx
	err error
}

func (f failingTx) InsertWinner(context.Context, models.WinnerRecord) error { return f.err }

func newTestService(opts ...Option) (*LotteryService, *memory.Store) {
	st := memory.New()
	opts = append([]Option{WithClock(newStepClock())}, opts...)
	return NewLotteryService(st, opts...), st
}

// setupRound creates one prize per quota, a round allocating them, loads
// registrants coded "<name>-001".. and activates the round.
func setupRound(t *testing.T, svc *LotteryService, name string, registrants int, quotas ...int) (*models.Round, []string) {
	t.Helper()
	ctx := context.Background()

	in := RoundInput{Name: name}
	prizeIDs := make([]string, 0, len(quotas))
	for i, q := range quotas {
		p, err := svc.CreatePrize(ctx, PrizeInput{Name: fmt.Sprintf("%s prize %d", name, i+1)})
		require.NoError(t, err)
		prizeIDs = append(prizeIDs, p.ID)
		in.Prizes = append(in.Prizes, AllocationInput{PrizeID: p.ID, Quantity: q})
	}
	round, err := svc.CreateRound(ctx, in)
	require.NoError(t, err)

	rows := make([]RegistrantInput, registrants)
	for i := range rows {
		rows[i] = RegistrantInput{
			Code:  fmt.Sprintf("%s-%03d", name, i+1),
			Name:  fmt.Sprintf("Registrant %d", i+1),
			Phone: fmt.Sprintf("0901234%03d", i+1),
		}
	}
	n, err := svc.ReplaceRegistrants(ctx, round.ID, rows)
	require.NoError(t, err)
	require.Equal(t, registrants, n)

	round, err = svc.ActivateRound(ctx, round.ID)
	require.NoError(t, err)
	return round, prizeIDs
}
