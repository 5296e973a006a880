package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"luckydraw/internal/models"
	"luckydraw/internal/store"

	"github.com/google/logger"
)

const (
	defaultPageSize = 10
	maxPageSize     = 200

	minCodeLength = 6
	maxCodeLength = 10
)

// PrizeInput carries the editable fields of a prize.
type PrizeInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// AllocationInput allocates Quantity units of a prize to a round.
type AllocationInput struct {
	PrizeID  string `json:"prizeId"`
	Quantity int    `json:"quantity"`
}

// RoundInput carries the editable fields of a round. Activation is separate.
type RoundInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Date        time.Time         `json:"date"`
	Order       int               `json:"order"`
	IsCompleted bool              `json:"isCompleted"`
	Prizes      []AllocationInput `json:"prizes"`
}

// RegistrantInput is one row of a registrant upload.
type RegistrantInput struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SettingsInput updates the settings row. A zero CodeLength keeps the current value.
type SettingsInput struct {
	CurrentRoundID string `json:"currentRoundId"`
	CodeLength     int    `json:"codeLength"`
}

// --- prizes -----------------------------------------------------------------

// CreatePrize validates and stores a new prize.
func (s *LotteryService) CreatePrize(ctx context.Context, in PrizeInput) (*models.Prize, error) {
	p, err := prizeFromInput(in)
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreatePrize(ctx, p)
	if err != nil {
		return nil, storageError(err, "", "")
	}
	logger.Infof("prize %s created: %s", created.ID, created.Name)
	return &created, nil
}

// UpdatePrize rewrites the cosmetic fields of a prize.
func (s *LotteryService) UpdatePrize(ctx context.Context, id string, in PrizeInput) (*models.Prize, error) {
	p, err := prizeFromInput(in)
	if err != nil {
		return nil, err
	}
	p.ID = id
	updated, err := s.store.UpdatePrize(ctx, p)
	if err != nil {
		return nil, fromStore(err, ReasonPrize, "", id)
	}
	return &updated, nil
}

// GetPrize returns one prize by id.
func (s *LotteryService) GetPrize(ctx context.Context, id string) (*models.Prize, error) {
	p, err := s.store.GetPrize(ctx, id)
	if err != nil {
		return nil, fromStore(err, ReasonPrize, "", id)
	}
	return &p, nil
}

// ListPrizes returns every prize in creation order.
func (s *LotteryService) ListPrizes(ctx context.Context) ([]models.Prize, error) {
	prizes, err := s.store.ListPrizes(ctx)
	if err != nil {
		return nil, storageError(err, "", "")
	}
	return prizes, nil
}

// DeletePrize removes the prize together with its allocations and winner records.
func (s *LotteryService) DeletePrize(ctx context.Context, id string) error {
	if err := s.store.DeletePrize(ctx, id); err != nil {
		return fromStore(err, ReasonPrize, "", id)
	}
	logger.Infof("prize %s deleted", id)
	return nil
}

func prizeFromInput(in PrizeInput) (models.Prize, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Prize{}, invalidInput(ReasonValidation, "prize name is required")
	}
	return models.Prize{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}, nil
}

// --- rounds -----------------------------------------------------------------

// CreateRound stores a new inactive round with its allocations.
func (s *LotteryService) CreateRound(ctx context.Context, in RoundInput) (*models.Round, error) {
	r, err := s.roundFromInput(ctx, in)
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreateRound(ctx, r)
	if err != nil {
		return nil, roundWriteError(err, "")
	}
	logger.Infof("round %s created: %s with %d allocations", created.ID, created.Name, len(created.Prizes))
	return &created, nil
}

// UpdateRound rewrites a round and its allocations. An allocation may not go
// below the winners already drawn for it, nor be removed while it has any;
// the store checks this atomically with the write.
func (s *LotteryService) UpdateRound(ctx context.Context, id string, in RoundInput) (*models.Round, error) {
	if _, err := s.store.GetRound(ctx, id); err != nil {
		return nil, fromStore(err, ReasonRound, id, "")
	}
	r, err := s.roundFromInput(ctx, in)
	if err != nil {
		return nil, err
	}
	r.ID = id

	updated, err := s.store.UpdateRound(ctx, r)
	if err != nil {
		return nil, roundWriteError(err, id)
	}
	return &updated, nil
}

// GetRound returns one round with its allocations.
func (s *LotteryService) GetRound(ctx context.Context, id string) (*models.Round, error) {
	r, err := s.store.GetRound(ctx, id)
	if err != nil {
		return nil, fromStore(err, ReasonRound, id, "")
	}
	return &r, nil
}

// ListRounds returns every round ordered by its display order.
func (s *LotteryService) ListRounds(ctx context.Context) ([]models.Round, error) {
	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return nil, storageError(err, "", "")
	}
	return rounds, nil
}

// DeleteRound removes the round with its registrants, allocations and winners.
func (s *LotteryService) DeleteRound(ctx context.Context, id string) error {
	if err := s.store.DeleteRound(ctx, id); err != nil {
		return fromStore(err, ReasonRound, id, "")
	}
	logger.Infof("round %s deleted", id)
	return nil
}

// ActivateRound makes id the only active round and the current round.
func (s *LotteryService) ActivateRound(ctx context.Context, id string) (*models.Round, error) {
	if err := s.store.ActivateRound(ctx, id); err != nil {
		return nil, fromStore(err, ReasonRound, id, "")
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, storageError(err, id, "")
	}
	settings.CurrentRoundID = id
	if _, err := s.store.SaveSettings(ctx, settings); err != nil {
		return nil, fromStore(err, ReasonRound, id, "")
	}
	logger.Infof("round %s activated", id)
	return s.GetRound(ctx, id)
}

func (s *LotteryService) roundFromInput(ctx context.Context, in RoundInput) (models.Round, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Round{}, invalidInput(ReasonValidation, "round name is required")
	}
	date := in.Date
	if date.IsZero() {
		date = s.clock.Now().UTC()
	}

	seen := make(map[string]bool, len(in.Prizes))
	allocations := make([]models.RoundPrize, 0, len(in.Prizes))
	for _, a := range in.Prizes {
		if a.Quantity <= 0 {
			return models.Round{}, invalidInput(ReasonValidation, fmt.Sprintf("quantity of prize %s must be positive", a.PrizeID))
		}
		if seen[a.PrizeID] {
			return models.Round{}, invalidInput(ReasonDuplicatePrize, a.PrizeID)
		}
		seen[a.PrizeID] = true
		if _, err := s.store.GetPrize(ctx, a.PrizeID); err != nil {
			return models.Round{}, fromStore(err, ReasonPrize, "", a.PrizeID)
		}
		allocations = append(allocations, models.RoundPrize{PrizeID: a.PrizeID, Quantity: a.Quantity})
	}

	return models.Round{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Date:        date,
		Order:       in.Order,
		IsCompleted: in.IsCompleted,
		Prizes:      allocations,
	}, nil
}

func roundWriteError(err error, roundID string) error {
	var below *store.BelowDrawnError
	switch {
	case errors.As(err, &below):
		details := make([]string, len(below.Prizes))
		for i, p := range below.Prizes {
			details[i] = fmt.Sprintf("%s (%d drawn)", p.PrizeID, p.Drawn)
		}
		return &Error{Kind: KindInvalidState, Reason: ReasonQuotaBelowDrawn, RoundID: roundID, Details: details, Err: err}
	case errors.Is(err, store.ErrDuplicate):
		return &Error{Kind: KindInvalidInput, Reason: ReasonDuplicatePrize, RoundID: roundID, Err: err}
	case errors.Is(err, store.ErrNotFound):
		// a round or an allocated prize vanished under a concurrent delete
		return &Error{Kind: KindNotFound, Reason: ReasonRound, RoundID: roundID, Err: err}
	default:
		return storageError(err, roundID, "")
	}
}

// --- registrants ------------------------------------------------------------

// ReplaceRegistrants swaps the round's registrant list for rows, dropping the
// round's winner records. Codes must be present and unique within rows.
func (s *LotteryService) ReplaceRegistrants(ctx context.Context, roundID string, rows []RegistrantInput) (int, error) {
	if _, err := s.store.GetRound(ctx, roundID); err != nil {
		return 0, fromStore(err, ReasonRound, roundID, "")
	}

	registrants := make([]models.Registrant, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	var dups []string
	for i, row := range rows {
		code := strings.TrimSpace(row.Code)
		if code == "" {
			return 0, &Error{Kind: KindInvalidInput, Reason: ReasonValidation, RoundID: roundID,
				Details: []string{fmt.Sprintf("row %d: code is required", i+1)}}
		}
		if seen[code] {
			dups = append(dups, code)
			continue
		}
		seen[code] = true
		registrants = append(registrants, models.Registrant{
			Code:  code,
			Name:  strings.TrimSpace(row.Name),
			Phone: strings.TrimSpace(row.Phone),
		})
	}
	if len(dups) > 0 {
		return 0, &Error{Kind: KindInvalidInput, Reason: ReasonDuplicateCode, RoundID: roundID, Details: dups}
	}

	if err := s.store.ReplaceRegistrants(ctx, roundID, registrants); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return 0, &Error{Kind: KindInvalidInput, Reason: ReasonDuplicateCode, RoundID: roundID, Err: err}
		}
		return 0, fromStore(err, ReasonRound, roundID, "")
	}
	logger.Infof("round %s: %d registrants loaded", roundID, len(registrants))
	return len(registrants), nil
}

// ListRegistrants returns one page of the round's registrants.
func (s *LotteryService) ListRegistrants(ctx context.Context, roundID string, page, pageSize int) (*models.RegistrantPage, error) {
	page, pageSize, offset := pageWindow(page, pageSize)
	data, total, err := s.store.ListRegistrants(ctx, roundID, offset, pageSize)
	if err != nil {
		return nil, storageError(err, roundID, "")
	}
	return &models.RegistrantPage{Data: data, Page: page, TotalPages: totalPages(total, pageSize), Total: total}, nil
}

// AllRegistrants returns every registrant of the round in upload order.
func (s *LotteryService) AllRegistrants(ctx context.Context, roundID string) ([]models.Registrant, error) {
	if _, err := s.store.GetRound(ctx, roundID); err != nil {
		return nil, fromStore(err, ReasonRound, roundID, "")
	}
	data, _, err := s.store.ListRegistrants(ctx, roundID, 0, 0)
	if err != nil {
		return nil, storageError(err, roundID, "")
	}
	return data, nil
}

// --- winners ----------------------------------------------------------------

// ListWinners returns one page of winner records, newest first.
func (s *LotteryService) ListWinners(ctx context.Context, filter models.WinnerFilter, page, pageSize int) (*models.WinnerPage, error) {
	page, pageSize, offset := pageWindow(page, pageSize)
	data, total, err := s.store.ListWinners(ctx, filter, offset, pageSize)
	if err != nil {
		return nil, storageError(err, filter.RoundID, filter.PrizeID)
	}
	return &models.WinnerPage{Data: data, Page: page, TotalPages: totalPages(total, pageSize), Total: total}, nil
}

// AllWinners returns every winner record matching filter, newest first.
func (s *LotteryService) AllWinners(ctx context.Context, filter models.WinnerFilter) ([]models.WinnerRecord, error) {
	data, _, err := s.store.ListWinners(ctx, filter, 0, 0)
	if err != nil {
		return nil, storageError(err, filter.RoundID, filter.PrizeID)
	}
	return data, nil
}

func pageWindow(page, size int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page-1 > math.MaxInt/size {
		// (page-1)*size would overflow; no row lives that far
		return page, size, math.MaxInt
	}
	return page, size, (page - 1) * size
}

func totalPages(total, size int) int {
	return (total + size - 1) / size
}

// --- settings ---------------------------------------------------------------

// GetSettings returns the settings row, with the default code length filled in.
func (s *LotteryService) GetSettings(ctx context.Context) (*models.Settings, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, storageError(err, "", "")
	}
	if settings.CodeLength == 0 {
		settings.CodeLength = s.codeLength
	}
	return &settings, nil
}

// UpdateSettings validates and saves the settings row.
func (s *LotteryService) UpdateSettings(ctx context.Context, in SettingsInput) (*models.Settings, error) {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if in.CodeLength != 0 {
		if in.CodeLength < minCodeLength || in.CodeLength > maxCodeLength {
			return nil, invalidInput(ReasonValidation,
				fmt.Sprintf("codeLength must be between %d and %d", minCodeLength, maxCodeLength))
		}
		current.CodeLength = in.CodeLength
	}
	current.CurrentRoundID = strings.TrimSpace(in.CurrentRoundID)

	saved, err := s.store.SaveSettings(ctx, *current)
	if err != nil {
		return nil, fromStore(err, ReasonRound, current.CurrentRoundID, "")
	}
	return &saved, nil
}

// CurrentRound returns the round named by settings, falling back to the
// active round when settings name none.
func (s *LotteryService) CurrentRound(ctx context.Context) (*models.Round, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, storageError(err, "", "")
	}
	if settings.CurrentRoundID != "" {
		r, err := s.store.GetRound(ctx, settings.CurrentRoundID)
		if err == nil {
			return &r, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storageError(err, settings.CurrentRoundID, "")
		}
	}

	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return nil, storageError(err, "", "")
	}
	for i := range rounds {
		if rounds[i].IsActive {
			return &rounds[i], nil
		}
	}
	return nil, newError(KindNotFound, ReasonRound, "", "")
}
