package dto

import "time"

type PlaceBetResponse struct {
	BetID      string `json:"betId"`
	RoundID    string `json:"roundId"`
	GameType   string `json:"gameType"`
	Status     string `json:"status"` // PENDING
	StakeCents int64  `json:"stakeCents"`
}

type CashoutResponse struct {
	BetID       string `json:"betId"`
	Multiplier  string `json:"multiplier"` // "2.50"
	PayoutCents int64  `json:"payoutCents"`
	NewBalance  int64  `json:"newBalance"`
}

type BetResponse struct {
	BetID       string    `json:"betId"`
	RoundID     string    `json:"roundId"`
	GameType    string    `json:"gameType"`
	Status      string    `json:"status"`
	StakeCents  int64     `json:"stakeCents"`
	PayoutCents int64     `json:"payoutCents"`
	PlacedAt    time.Time `json:"placedAt"`
}

type StatsResponse struct {
	AccountID string `json:"accountId"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
	Voids     int    `json:"voids"`
	NetCents  int64  `json:"netResult"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
