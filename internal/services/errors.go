package services

import (
	"errors"
	"strings"

	"luckydraw/internal/store"
)

// Kind is the class of a lottery failure. Callers branch on it.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindInvalidState Kind = "invalid_state"
	KindExhausted    Kind = "exhausted"
	KindEmpty        Kind = "empty"
	KindConflict     Kind = "conflict"
	KindStorage      Kind = "storage"
)

// Reason narrows a Kind to the specific condition the operator has to act on.
type Reason string

const (
	ReasonRound             Reason = "round"
	ReasonPrize             Reason = "prize"
	ReasonPrizeInRound      Reason = "prize_in_round"
	ReasonRoundNotActive    Reason = "round_not_active"
	ReasonRoundCompleted    Reason = "round_completed"
	ReasonPrizeQuota        Reason = "prize_quota"
	ReasonAllRegistrantsWon Reason = "all_registrants_won"
	ReasonNoRegistrants     Reason = "no_registrants"
	ReasonDuplicateWinner   Reason = "duplicate_winner"
	ReasonDuplicateCode     Reason = "duplicate_code"
	ReasonDuplicatePrize    Reason = "duplicate_prize"
	ReasonQuotaBelowDrawn   Reason = "quota_below_drawn"
	ReasonValidation        Reason = "validation"
	ReasonStorage           Reason = "storage"
)

var messages = map[Reason]string{
	ReasonRound:             "round not found",
	ReasonPrize:             "prize not found",
	ReasonPrizeInRound:      "prize is not allocated in this round",
	ReasonRoundNotActive:    "round is not active yet",
	ReasonRoundCompleted:    "round is already completed",
	ReasonPrizeQuota:        "no units of this prize are left in this round",
	ReasonAllRegistrantsWon: "every registrant of this round has already won",
	ReasonNoRegistrants:     "this round has no registrants",
	ReasonDuplicateWinner:   "the picked registrant was taken by a concurrent draw; check statistics before drawing again",
	ReasonDuplicateCode:     "registrant codes must be unique within an upload",
	ReasonDuplicatePrize:    "a prize can be allocated only once per round",
	ReasonQuotaBelowDrawn:   "allocation is below the number of winners already drawn",
	ReasonValidation:        "invalid input",
	ReasonStorage:           "storage failure, the request can be retried",
}

// Error is the tagged failure returned by LotteryService.
type Error struct {
	Kind    Kind
	Reason  Reason
	RoundID string
	PrizeID string
	Details []string
	Err     error
}

// Message is the human-readable text for the operator.
func (e *Error) Message() string {
	msg, ok := messages[e.Reason]
	if !ok {
		msg = string(e.Kind)
	}
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, ", ")
	}
	return msg
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message() + ": " + e.Err.Error()
	}
	return e.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and, when the target sets one, Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Retryable reports whether the same request may simply be sent again.
func (e *Error) Retryable() bool { return e.Kind == KindStorage }

// Sentinels for errors.Is.
var (
	ErrRoundNotFound       = &Error{Kind: KindNotFound, Reason: ReasonRound}
	ErrPrizeNotFound       = &Error{Kind: KindNotFound, Reason: ReasonPrize}
	ErrPrizeNotInRound     = &Error{Kind: KindNotFound, Reason: ReasonPrizeInRound}
	ErrRoundNotActive      = &Error{Kind: KindInvalidState, Reason: ReasonRoundNotActive}
	ErrRoundCompleted      = &Error{Kind: KindInvalidState, Reason: ReasonRoundCompleted}
	ErrPrizeQuotaExhausted = &Error{Kind: KindExhausted, Reason: ReasonPrizeQuota}
	ErrAllRegistrantsWon   = &Error{Kind: KindExhausted, Reason: ReasonAllRegistrantsWon}
	ErrNoRegistrants       = &Error{Kind: KindEmpty, Reason: ReasonNoRegistrants}
	ErrDuplicateWinner     = &Error{Kind: KindConflict, Reason: ReasonDuplicateWinner}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrStorage             = &Error{Kind: KindStorage}
)

func newError(kind Kind, reason Reason, roundID, prizeID string) *Error {
	return &Error{Kind: kind, Reason: reason, RoundID: roundID, PrizeID: prizeID}
}

func invalidInput(reason Reason, details ...string) *Error {
	return &Error{Kind: KindInvalidInput, Reason: reason, Details: details}
}

func storageError(err error, roundID, prizeID string) *Error {
	return &Error{Kind: KindStorage, Reason: ReasonStorage, RoundID: roundID, PrizeID: prizeID, Err: err}
}

// fromStore converts a store error; ErrNotFound becomes notFound, anything
// unrecognised becomes a retryable storage error.
func fromStore(err error, notFound Reason, roundID, prizeID string) error {
	var svcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &svcErr):
		return svcErr
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Reason: notFound, RoundID: roundID, PrizeID: prizeID, Err: err}
	default:
		return storageError(err, roundID, prizeID)
	}
}
