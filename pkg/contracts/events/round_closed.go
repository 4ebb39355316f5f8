package events

import "time"

// Evento publicado no tópico "round_closed" quando um round fecha.
// ServerSeed revelado junto com o resultado permite recomputar o sorteio
// a partir do commit publicado na abertura (fairness auditável).
type RoundClosed struct {
	RoundID    string    `json:"round_id"`
	GameType   string    `json:"game_type"`
	Outcome    string    `json:"outcome"`
	Commit     string    `json:"commit"`      // sha256(server_seed), publicado na abertura
	ServerSeed string    `json:"server_seed"` // revelado no fechamento
	Voided     bool      `json:"voided"`
	ClosedAt   time.Time `json:"closed_at"`
}
