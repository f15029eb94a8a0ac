package dto

import (
	"time"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
)

type PlaceEntryResponse struct {
	EntryID         string `json:"entry_id"`
	Status          string `json:"status"` // OPEN
	Multiplier      int64  `json:"multiplier"`
	PotentialPayout int64  `json:"potential_payout"`
}

type EntryResponse struct {
	EntryID         string        `json:"entry_id"`
	Status          string        `json:"status"`
	Wager           int64         `json:"wager"`
	Multiplier      int64         `json:"multiplier"`
	PotentialPayout int64         `json:"potential_payout"`
	CreatedAt       time.Time     `json:"created_at"`
	SettledAt       *time.Time    `json:"settled_at,omitempty"`
	Legs            []LegResponse `json:"legs"`
}

type LegResponse struct {
	PropLineID   string   `json:"prop_line_id"`
	Pick         string   `json:"pick"`
	LineValue    float64  `json:"line_value"`
	ActualResult *float64 `json:"actual_value,omitempty"`
	Result       *string  `json:"result"` // null enquanto não resolvida
}

type SettlementResponse struct {
	LegsResolved   int      `json:"legs_resolved"`
	EntriesSettled int      `json:"entries_settled"`
	Warnings       []string `json:"warnings,omitempty"`
}

type MeResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

type UnresolvedLegResponse struct {
	LegID      string    `json:"leg_id"`
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	PropLineID string    `json:"prop_line_id"`
	StatType   string    `json:"stat_type"`
	LineValue  float64   `json:"line_value"`
	Pick       string    `json:"pick"`
	CreatedAt  time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewPlaceEntryResponse(e entry.Entry) PlaceEntryResponse {
	return PlaceEntryResponse{
		EntryID:         e.ID,
		Status:          string(e.Status),
		Multiplier:      e.Multiplier,
		PotentialPayout: e.PotentialPayoutCents,
	}
}

func NewEntryResponse(e entry.Entry) EntryResponse {
	out := EntryResponse{
		EntryID:         e.ID,
		Status:          string(e.Status),
		Wager:           e.WagerCents,
		Multiplier:      e.Multiplier,
		PotentialPayout: e.PotentialPayoutCents,
		CreatedAt:       e.CreatedAt,
		SettledAt:       e.SettledAt,
		Legs:            make([]LegResponse, 0, len(e.Legs)),
	}
	for _, l := range e.Legs {
		lr := LegResponse{
			PropLineID:   l.PropLineID,
			Pick:         string(l.Pick),
			LineValue:    l.LineValue,
			ActualResult: l.ActualResult,
		}
		if l.Result != nil {
			r := string(*l.Result)
			lr.Result = &r
		}
		out.Legs = append(out.Legs, lr)
	}
	return out
}

func NewUnresolvedLegResponse(u repo.UnresolvedLeg) UnresolvedLegResponse {
	return UnresolvedLegResponse{
		LegID:      u.LegID,
		EntryID:    u.EntryID,
		UserID:     u.UserID,
		PropLineID: u.PropLineID,
		StatType:   u.StatType,
		LineValue:  u.LineValue,
		Pick:       string(u.Pick),
		CreatedAt:  u.CreatedAt,
	}
}
