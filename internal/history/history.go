package history

import (
	"context"
	"time"
)

// Entry é o registro imutável de uma aposta liquidada.
// NetCents = payout - stake (negativo na perda, zero no void).
type Entry struct {
	BetID     string    `json:"betId"`
	AccountID string    `json:"accountId"`
	GameType  string    `json:"gameType"`
	Stake     int64     `json:"stake"`
	Payout    int64     `json:"payout"`
	NetCents  int64     `json:"netResult"`
	Outcome   string    `json:"outcome"`
	SettledAt time.Time `json:"settledAt"`
	WasVoided bool      `json:"voided,omitempty"`
}

// Store é o histórico append-only de apostas liquidadas por conta.
// Append é a única mutação (fora a política de retenção).
type Store interface {
	Append(ctx context.Context, e Entry) error

	// Query devolve as entradas da conta, mais recente primeiro.
	Query(ctx context.Context, accountID string, limit, offset int) ([]Entry, error)
}

// Stats são os agregados de uma conta: função pura do histórico,
// nunca estado armazenado em separado.
type Stats struct {
	Wins     int   `json:"wins"`
	Losses   int   `json:"losses"`
	Voids    int   `json:"voids"`
	NetCents int64 `json:"netProfit"`
}

// Fold computa os agregados dobrando sobre a sequência de entradas.
func Fold(entries []Entry) Stats {
	var s Stats
	for _, e := range entries {
		switch {
		case e.WasVoided:
			s.Voids++
		case e.Payout > 0:
			s.Wins++
			s.NetCents += e.NetCents
		default:
			s.Losses++
			s.NetCents += e.NetCents
		}
	}
	return s
}
