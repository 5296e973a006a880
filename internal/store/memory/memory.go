// Package memory is an in-process implementation of store.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// Store keeps every entity in memory behind one RWMutex. Draws hold the write
// lock for their whole unit, which serializes them per store.
type Store struct {
	mu          sync.RWMutex
	prizes      []models.Prize
	rounds      []models.Round
	allocations []models.RoundPrize
	registrants []models.Registrant
	winners     []models.WinnerRecord
	settings    models.Settings
	now         func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// --- draw unit --------------------------------------------------------------

type drawTx struct {
	s       *Store
	pending []models.WinnerRecord
}

// WithDrawLock holds the write lock for fn and applies its staged winners
// only if fn succeeds.
func (s *Store) WithDrawLock(ctx context.Context, roundID, prizeID string, fn func(tx store.DrawTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &drawTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.winners = append(s.winners, tx.pending...)
	return nil
}

func (tx *drawTx) GetRound(_ context.Context, id string) (models.Round, error) {
	return tx.s.getRound(id)
}

func (tx *drawTx) GetRoundPrize(_ context.Context, roundID, prizeID string) (models.RoundPrize, error) {
	return tx.s.getRoundPrize(roundID, prizeID)
}

func (tx *drawTx) CountWinners(_ context.Context, roundID, prizeID string) (int, error) {
	n := tx.s.countWinners(roundID, prizeID)
	for _, w := range tx.pending {
		if w.RoundID == roundID && (prizeID == "" || w.PrizeID == prizeID) {
			n++
		}
	}
	return n, nil
}

func (tx *drawTx) CountRegistrants(_ context.Context, roundID string) (int, error) {
	return tx.s.countRegistrants(roundID), nil
}

func (tx *drawTx) EligibleRegistrants(_ context.Context, roundID string) ([]models.Registrant, error) {
	won := tx.s.wonIn(roundID)
	for _, w := range tx.pending {
		if w.RoundID == roundID {
			won[w.RegistrantID] = true
		}
	}
	return tx.s.eligible(roundID, won), nil
}

func (tx *drawTx) RoundWinners(_ context.Context, roundID string) ([]models.WinnerRecord, error) {
	return tx.s.roundWinners(roundID), nil
}

// InsertWinner stages w; it becomes visible when the unit commits.
func (tx *drawTx) InsertWinner(_ context.Context, w models.WinnerRecord) error {
	s := tx.s
	if _, err := s.getRoundPrize(w.RoundID, w.PrizeID); err != nil {
		return err
	}
	reg, ok := s.findRegistrant(w.RegistrantID)
	if !ok || reg.RoundID != w.RoundID {
		return fmt.Errorf("registrant %s in round %s: %w", w.RegistrantID, w.RoundID, store.ErrNotFound)
	}
	for _, existing := range append(s.winners[:len(s.winners):len(s.winners)], tx.pending...) {
		if existing.RoundID == w.RoundID && existing.RegistrantID == w.RegistrantID {
			return fmt.Errorf("registrant %s already won in round %s: %w", w.RegistrantID, w.RoundID, store.ErrDuplicate)
		}
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	tx.pending = append(tx.pending, w)
	return nil
}

// --- Reader -----------------------------------------------------------------

func (s *Store) GetRound(_ context.Context, id string) (models.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRound(id)
}

func (s *Store) GetRoundPrize(_ context.Context, roundID, prizeID string) (models.RoundPrize, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRoundPrize(roundID, prizeID)
}

func (s *Store) CountWinners(_ context.Context, roundID, prizeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countWinners(roundID, prizeID), nil
}

func (s *Store) CountRegistrants(_ context.Context, roundID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countRegistrants(roundID), nil
}

func (s *Store) EligibleRegistrants(_ context.Context, roundID string) ([]models.Registrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eligible(roundID, s.wonIn(roundID)), nil
}

func (s *Store) RoundWinners(_ context.Context, roundID string) ([]models.WinnerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roundWinners(roundID), nil
}

// --- prizes -----------------------------------------------------------------

// CreatePrize stores p under a fresh id.
func (s *Store) CreatePrize(_ context.Context, p models.Prize) (models.Prize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := s.prizeIndex(p.ID); ok {
		return models.Prize{}, fmt.Errorf("prize %s: %w", p.ID, store.ErrDuplicate)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.prizes = append(s.prizes, p)
	return p, nil
}

// UpdatePrize rewrites the cosmetic fields of p.
func (s *Store) UpdatePrize(_ context.Context, p models.Prize) (models.Prize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.prizeIndex(p.ID)
	if !ok {
		return models.Prize{}, fmt.Errorf("prize %s: %w", p.ID, store.ErrNotFound)
	}
	p.CreatedAt = s.prizes[i].CreatedAt
	p.UpdatedAt = s.now()
	s.prizes[i] = p
	return p, nil
}

// GetPrize returns the prize with id.
func (s *Store) GetPrize(_ context.Context, id string) (models.Prize, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.prizeIndex(id)
	if !ok {
		return models.Prize{}, fmt.Errorf("prize %s: %w", id, store.ErrNotFound)
	}
	return s.prizes[i], nil
}

// ListPrizes returns the prizes in creation order.
func (s *Store) ListPrizes(_ context.Context) ([]models.Prize, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Prize, len(s.prizes))
	copy(out, s.prizes)
	return out, nil
}

// DeletePrize removes the prize with its allocations and winner records.
func (s *Store) DeletePrize(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.prizeIndex(id)
	if !ok {
		return fmt.Errorf("prize %s: %w", id, store.ErrNotFound)
	}
	s.prizes = append(s.prizes[:i], s.prizes[i+1:]...)
	s.winners = filter(s.winners, func(w models.WinnerRecord) bool { return w.PrizeID != id })
	s.allocations = filter(s.allocations, func(a models.RoundPrize) bool { return a.PrizeID != id })
	return nil
}

// --- rounds -----------------------------------------------------------------

// CreateRound stores r and its allocations.
func (s *Store) CreateRound(_ context.Context, r models.Round) (models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := s.roundIndex(r.ID); ok {
		return models.Round{}, fmt.Errorf("round %s: %w", r.ID, store.ErrDuplicate)
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	r.IsActive = false

	allocations, err := s.buildAllocations(r.ID, r.Prizes, now)
	if err != nil {
		return models.Round{}, err
	}
	r.Prizes = nil
	s.rounds = append(s.rounds, r)
	s.allocations = append(s.allocations, allocations...)
	return s.getRound(r.ID)
}

// UpdateRound rewrites r and its allocations under the write lock, so no draw
// commits between the drawn-count check and the write.
func (s *Store) UpdateRound(_ context.Context, r models.Round) (models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.roundIndex(r.ID)
	if !ok {
		return models.Round{}, fmt.Errorf("round %s: %w", r.ID, store.ErrNotFound)
	}
	now := s.now()
	allocations, err := s.buildAllocations(r.ID, r.Prizes, now)
	if err != nil {
		return models.Round{}, err
	}
	if err := store.BelowDrawn(r.ID, s.drawnCounts(r.ID), allocations); err != nil {
		return models.Round{}, err
	}

	existing := s.rounds[i]
	r.CreatedAt = existing.CreatedAt
	r.IsActive = existing.IsActive
	r.UpdatedAt = now
	r.Prizes = nil
	s.rounds[i] = r
	s.allocations = filter(s.allocations, func(a models.RoundPrize) bool { return a.RoundID != r.ID })
	s.allocations = append(s.allocations, allocations...)
	return s.getRound(r.ID)
}

// ListRounds returns the rounds ordered by Order.
func (s *Store) ListRounds(_ context.Context) ([]models.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		full, err := s.getRound(r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// DeleteRound removes the round and everything scoped to it.
func (s *Store) DeleteRound(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.roundIndex(id)
	if !ok {
		return fmt.Errorf("round %s: %w", id, store.ErrNotFound)
	}
	s.rounds = append(s.rounds[:i], s.rounds[i+1:]...)
	s.winners = filter(s.winners, func(w models.WinnerRecord) bool { return w.RoundID != id })
	s.registrants = filter(s.registrants, func(r models.Registrant) bool { return r.RoundID != id })
	s.allocations = filter(s.allocations, func(a models.RoundPrize) bool { return a.RoundID != id })
	if s.settings.CurrentRoundID == id {
		s.settings.CurrentRoundID = ""
	}
	return nil
}

// ActivateRound deactivates every other round and activates id.
func (s *Store) ActivateRound(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roundIndex(id); !ok {
		return fmt.Errorf("round %s: %w", id, store.ErrNotFound)
	}
	now := s.now()
	for i := range s.rounds {
		active := s.rounds[i].ID == id
		if s.rounds[i].IsActive != active {
			s.rounds[i].IsActive = active
			s.rounds[i].UpdatedAt = now
		}
	}
	return nil
}

// --- registrants ------------------------------------------------------------

// ReplaceRegistrants drops the round's winners and registrants and stores
// the new set.
func (s *Store) ReplaceRegistrants(_ context.Context, roundID string, registrants []models.Registrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roundIndex(roundID); !ok {
		return fmt.Errorf("round %s: %w", roundID, store.ErrNotFound)
	}
	now := s.now()
	seen := make(map[string]bool, len(registrants))
	batch := make([]models.Registrant, 0, len(registrants))
	for _, r := range registrants {
		if seen[r.Code] {
			return fmt.Errorf("registrant code %q: %w", r.Code, store.ErrDuplicate)
		}
		seen[r.Code] = true
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.RoundID = roundID
		r.CreatedAt = now
		batch = append(batch, r)
	}

	s.winners = filter(s.winners, func(w models.WinnerRecord) bool { return w.RoundID != roundID })
	s.registrants = filter(s.registrants, func(r models.Registrant) bool { return r.RoundID != roundID })
	s.registrants = append(s.registrants, batch...)
	return nil
}

// ListRegistrants returns a window of the round's registrants and their total.
func (s *Store) ListRegistrants(_ context.Context, roundID string, offset, limit int) ([]models.Registrant, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Registrant
	for _, r := range s.registrants {
		if roundID == "" || r.RoundID == roundID {
			matched = append(matched, r)
		}
	}
	return page(matched, offset, limit), len(matched), nil
}

// --- winners ----------------------------------------------------------------

// ListWinners returns a window of matching winners, newest first, and their total.
func (s *Store) ListWinners(_ context.Context, f models.WinnerFilter, offset, limit int) ([]models.WinnerRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.WinnerRecord
	for i := len(s.winners) - 1; i >= 0; i-- {
		w := s.winners[i]
		if f.RoundID != "" && w.RoundID != f.RoundID {
			continue
		}
		if f.PrizeID != "" && w.PrizeID != f.PrizeID {
			continue
		}
		matched = append(matched, s.hydrate(w))
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].DrawnAt.After(matched[j].DrawnAt) })
	return page(matched, offset, limit), len(matched), nil
}

// --- settings ---------------------------------------------------------------

// GetSettings returns the settings row.
func (s *Store) GetSettings(_ context.Context) (models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// SaveSettings stores settings; a current round must exist.
func (s *Store) SaveSettings(_ context.Context, settings models.Settings) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.CurrentRoundID != "" {
		if _, ok := s.roundIndex(settings.CurrentRoundID); !ok {
			return models.Settings{}, fmt.Errorf("round %s: %w", settings.CurrentRoundID, store.ErrNotFound)
		}
	}
	settings.UpdatedAt = s.now()
	s.settings = settings
	return settings, nil
}

// --- unlocked helpers -------------------------------------------------------

func (s *Store) prizeIndex(id string) (int, bool) {
	for i, p := range s.prizes {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) roundIndex(id string) (int, bool) {
	for i, r := range s.rounds {
		if r.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) findRegistrant(id string) (models.Registrant, bool) {
	for _, r := range s.registrants {
		if r.ID == id {
			return r, true
		}
	}
	return models.Registrant{}, false
}

func (s *Store) getRound(id string) (models.Round, error) {
	i, ok := s.roundIndex(id)
	if !ok {
		return models.Round{}, fmt.Errorf("round %s: %w", id, store.ErrNotFound)
	}
	r := s.rounds[i]
	r.Prizes = nil
	for _, a := range s.allocations {
		if a.RoundID == id {
			r.Prizes = append(r.Prizes, s.withPrize(a))
		}
	}
	sort.SliceStable(r.Prizes, func(i, j int) bool { return r.Prizes[i].Position < r.Prizes[j].Position })
	return r, nil
}

func (s *Store) getRoundPrize(roundID, prizeID string) (models.RoundPrize, error) {
	for _, a := range s.allocations {
		if a.RoundID == roundID && a.PrizeID == prizeID {
			return s.withPrize(a), nil
		}
	}
	return models.RoundPrize{}, fmt.Errorf("prize %s in round %s: %w", prizeID, roundID, store.ErrNotFound)
}

func (s *Store) withPrize(a models.RoundPrize) models.RoundPrize {
	if i, ok := s.prizeIndex(a.PrizeID); ok {
		a.Prize = s.prizes[i]
	}
	return a
}

func (s *Store) buildAllocations(roundID string, in []models.RoundPrize, now time.Time) ([]models.RoundPrize, error) {
	seen := make(map[string]bool, len(in))
	out := make([]models.RoundPrize, 0, len(in))
	for pos, a := range in {
		if seen[a.PrizeID] {
			return nil, fmt.Errorf("prize %s allocated twice: %w", a.PrizeID, store.ErrDuplicate)
		}
		seen[a.PrizeID] = true
		if _, ok := s.prizeIndex(a.PrizeID); !ok {
			return nil, fmt.Errorf("prize %s: %w", a.PrizeID, store.ErrNotFound)
		}
		out = append(out, models.RoundPrize{
			ID:        uuid.NewString(),
			RoundID:   roundID,
			PrizeID:   a.PrizeID,
			Quantity:  a.Quantity,
			Position:  pos,
			CreatedAt: now,
		})
	}
	return out, nil
}

// drawnCounts returns the round's winners per prize in first-draw order.
func (s *Store) drawnCounts(roundID string) []store.DrawnCount {
	var out []store.DrawnCount
	index := make(map[string]int)
	for _, w := range s.winners {
		if w.RoundID != roundID {
			continue
		}
		i, ok := index[w.PrizeID]
		if !ok {
			i = len(out)
			index[w.PrizeID] = i
			out = append(out, store.DrawnCount{PrizeID: w.PrizeID})
		}
		out[i].Drawn++
	}
	return out
}

func (s *Store) countWinners(roundID, prizeID string) int {
	n := 0
	for _, w := range s.winners {
		if w.RoundID == roundID && (prizeID == "" || w.PrizeID == prizeID) {
			n++
		}
	}
	return n
}

func (s *Store) countRegistrants(roundID string) int {
	n := 0
	for _, r := range s.registrants {
		if r.RoundID == roundID {
			n++
		}
	}
	return n
}

func (s *Store) wonIn(roundID string) map[string]bool {
	won := make(map[string]bool)
	for _, w := range s.winners {
		if w.RoundID == roundID {
			won[w.RegistrantID] = true
		}
	}
	return won
}

func (s *Store) eligible(roundID string, won map[string]bool) []models.Registrant {
	var out []models.Registrant
	for _, r := range s.registrants {
		if r.RoundID == roundID && !won[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) roundWinners(roundID string) []models.WinnerRecord {
	var out []models.WinnerRecord
	for _, w := range s.winners {
		if w.RoundID == roundID {
			out = append(out, s.hydrate(w))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DrawnAt.Before(out[j].DrawnAt) })
	return out
}

// hydrate fills the display fields from the current prize, round and registrant rows.
func (s *Store) hydrate(w models.WinnerRecord) models.WinnerRecord {
	if i, ok := s.prizeIndex(w.PrizeID); ok {
		w.PrizeName = s.prizes[i].Name
		w.PrizeImageURL = s.prizes[i].ImageURL
	}
	if i, ok := s.roundIndex(w.RoundID); ok {
		w.RoundName = s.rounds[i].Name
	}
	if r, ok := s.findRegistrant(w.RegistrantID); ok {
		w.RegistrantCode = r.Code
		w.RegistrantName = r.Name
		w.RegistrantPhone = r.Phone
	}
	return w
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func page[T any](in []T, offset, limit int) []T {
	if offset < 0 || offset >= len(in) {
		return []T{}
	}
	end := len(in)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, in[offset:end])
	return out
}
