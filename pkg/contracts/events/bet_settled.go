package events

import "time"

// Evento publicado no tópico "bet_settled" após cada aposta liquidada.
// payout_cents = 0 significa perda; status VOID significa estorno.
type BetSettled struct {
	BetID       string    `json:"bet_id"`
	AccountID   string    `json:"account_id"`
	GameType    string    `json:"game_type"` // "crash" | "color" | "car_race"
	StakeCents  int64     `json:"stake_cents"`
	PayoutCents int64     `json:"payout_cents"`
	Status      string    `json:"status"`  // "SETTLED" | "VOID"
	Outcome     string    `json:"outcome"` // representação textual do resultado do round
	SettledAt   time.Time `json:"settled_at"`
}
