package models

import "time"

// Prize represents a prize type that rounds can allocate.
// Name, Description and ImageURL are cosmetic and may change after winners exist.
type Prize struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Round is a scoped drawing event with its own registrant pool and prize quotas.
type Round struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Date        time.Time    `json:"date"`
	IsActive    bool         `json:"isActive"`
	IsCompleted bool         `json:"isCompleted"`
	Order       int          `json:"order"`
	Prizes      []RoundPrize `json:"prizes,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// RoundPrize allocates Quantity units of a prize to a round.
type RoundPrize struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"roundId"`
	PrizeID   string    `json:"prizeId"`
	Quantity  int       `json:"quantity"`
	Position  int       `json:"position"`
	Prize     Prize     `json:"prize"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registrant is an entrant of exactly one round.
type Registrant struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"roundId"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// WinnerRecord is the durable fact that a registrant won a prize in a round.
// The registrant and prize fields are denormalized copies for display.
type WinnerRecord struct {
	ID              string    `json:"id"`
	RoundID         string    `json:"roundId"`
	PrizeID         string    `json:"prizeId"`
	RegistrantID    string    `json:"registrantId"`
	DrawnAt         time.Time `json:"drawnAt"`
	RoundName       string    `json:"roundName,omitempty"`
	PrizeName       string    `json:"prizeName"`
	PrizeImageURL   string    `json:"prizeImageUrl,omitempty"`
	RegistrantCode  string    `json:"registrantCode"`
	RegistrantName  string    `json:"registrantName"`
	RegistrantPhone string    `json:"registrantPhone"`
}

// Settings is the singleton configuration row.
type Settings struct {
	CurrentRoundID string    `json:"currentRoundId,omitempty"`
	CodeLength     int       `json:"codeLength"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PrizeRemaining is one line of the per-prize remaining quota.
type PrizeRemaining struct {
	PrizeID   string `json:"prizeId"`
	PrizeName string `json:"prizeName"`
	Total     int    `json:"total"`
	Remaining int    `json:"remaining"`
}

// RemainingPrizes summarizes what is left to give in a round.
type RemainingPrizes struct {
	Total   int              `json:"total"`
	ByPrize []PrizeRemaining `json:"byPrize"`
}

// DrawnWinner is a winner as shown under its prize group. ID is the
// winner record id.
type DrawnWinner struct {
	ID            string    `json:"id"`
	RegistrantID  string    `json:"registrantId"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	DrawnAt       time.Time `json:"drawnAt"`
	PrizeImageURL string    `json:"prizeImageUrl,omitempty"`
}

// DrawnPrize groups the winners of one prize in draw order.
type DrawnPrize struct {
	PrizeID   string        `json:"prizeId"`
	PrizeName string        `json:"prizeName"`
	Winners   []DrawnWinner `json:"winners"`
}

// RoundStatistics is the read-only summary of a round.
type RoundStatistics struct {
	RoundID         string          `json:"roundId"`
	TotalPrizes     int             `json:"totalPrizes"`
	RemainingPrizes RemainingPrizes `json:"remainingPrizes"`
	DrawnPrizes     []DrawnPrize    `json:"drawnPrizes"`
}

// DrawResult is returned by a successful draw.
type DrawResult struct {
	Winner     WinnerRecord    `json:"winner"`
	Statistics RoundStatistics `json:"statistics"`
}

// Availability tells whether a round still has someone to draw.
type Availability struct {
	CanDraw bool   `json:"canDraw"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// WinnerFilter narrows winner listings. Empty fields match everything.
type WinnerFilter struct {
	RoundID string
	PrizeID string
}

// RegistrantPage is one page of a round's registrants.
type RegistrantPage struct {
	Data       []Registrant `json:"data"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
	Total      int          `json:"total"`
}

// WinnerPage is one page of winner records.
type WinnerPage struct {
	Data       []WinnerRecord `json:"data"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	Total      int            `json:"total"`
}
