package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/rng"
)

type GameType string

const (
	GameCrash   GameType = "crash"
	GameColor   GameType = "color"
	GameCarRace GameType = "car_race"
)

func ParseGameType(s string) (GameType, error) {
	switch GameType(s) {
	case GameCrash, GameColor, GameCarRace:
		return GameType(s), nil
	}
	return "", ErrInvalidGameType
}

type BetStatus string

const (
	BetPending BetStatus = "PENDING"
	BetSettled BetStatus = "SETTLED"
	BetVoid    BetStatus = "VOID"
)

type RoundState string

const (
	RoundOpen     RoundState = "OPEN"
	RoundClosed   RoundState = "CLOSED"
	RoundSettled  RoundState = "SETTLED"
	RoundVoided   RoundState = "VOIDED"
	RoundArchived RoundState = "ARCHIVED"
)

// Bet é imutável depois de SETTLED. Os campos de cash-out só se aplicam
// ao crash.
type Bet struct {
	ID        string    `json:"betId"`
	AccountID string    `json:"accountId"`
	GameType  GameType  `json:"gameType"`
	RoundID   string    `json:"roundId"`
	Stake     int64     `json:"stake"` // centavos ainda em jogo
	Status    BetStatus `json:"status"`
	PlacedAt  time.Time `json:"placedAt"`

	// Predição parseada: cor, carro (1..4) + posição de chegada prevista,
	// ou alvo de auto cash-out em centésimos (0 = manual).
	PredColor   rng.Color `json:"predColor,omitempty"`
	PredCar     int       `json:"predCar,omitempty"`
	PredPos     int       `json:"predPos,omitempty"`
	AutoCashout int64     `json:"autoCashout,omitempty"`

	// Estado de cash-out do crash.
	CashedOutAt   int64 `json:"cashedOutAt,omitempty"` // centésimos; 0 = nunca
	HalfCashedOut bool  `json:"halfCashedOut,omitempty"`
	PremiumAtOpen bool  `json:"-"` // saldo >= tier quando a aposta entrou

	PayoutCents int64 `json:"payout"`
}

// Outcome é a tagged union de resultado; exatamente um campo relevante
// por tipo de jogo. Gerado uma vez por round, imutável depois.
type Outcome struct {
	Crash    int64     `json:"crash,omitempty"` // centésimos, >= 100
	Color    rng.Color `json:"color,omitempty"`
	CarOrder []int     `json:"carOrder,omitempty"` // CarOrder[0] = id do 1º colocado
}

// String é a forma textual usada em eventos e histórico.
func (o *Outcome) String(game GameType) string {
	if o == nil {
		return ""
	}
	switch game {
	case GameCrash:
		return fmt.Sprintf("crash:%d.%02dx", o.Crash/100, o.Crash%100)
	case GameColor:
		return "color:" + string(o.Color)
	case GameCarRace:
		parts := make([]string, len(o.CarOrder))
		for i, id := range o.CarOrder {
			parts[i] = strconv.Itoa(id)
		}
		return "car:" + strings.Join(parts, "-")
	}
	return ""
}

// Round de um jogo. Exatamente um round OPEN por tipo de jogo; as
// transições de estado são serializadas pelo mutex do jogo no engine.
type Round struct {
	ID       string
	GameType GameType
	State    RoundState
	OpenedAt time.Time
	ClosesAt time.Time // cutoff de apostas (zero no crash: cutoff é o multiplicador)
	ClosedAt time.Time
	Seed     rng.Seed
	Outcome  *Outcome
	Bets     map[string]*Bet

	// Estado vivo do crash.
	LiveMult   int64 // multiplicador corrente em centésimos (100 = 1.00x)
	crashPoint int64 // derivado do seed na abertura; nunca exposto antes do crash
}

// Tabelas de payout (multiplicadores x100, paridade com o original).
var colorPayoutX100 = map[rng.Color]int64{
	rng.ColorRed:    200,
	rng.ColorGreen:  200,
	rng.ColorViolet: 450,
}

// multiplicador por posição de chegada prevista (1..4); paga só se o
// carro apostado cruzar exatamente na posição prevista
var carPayoutX100 = map[int]int64{
	1: 350,
	2: 250,
	3: 180,
	4: 120,
}

// payoutFor computa o payout de uma aposta pendente contra o resultado
// do round. Crash sem cash-out manual perde tudo.
func payoutFor(b *Bet, o *Outcome) int64 {
	switch b.GameType {
	case GameCrash:
		// quem chegou aqui não sacou antes do crash
		return 0
	case GameColor:
		if b.PredColor == o.Color {
			return b.Stake * colorPayoutX100[o.Color] / 100
		}
		return 0
	case GameCarRace:
		for pos, id := range o.CarOrder {
			if id == b.PredCar {
				if pos+1 == b.PredPos {
					return b.Stake * carPayoutX100[b.PredPos] / 100
				}
				return 0
			}
		}
		return 0
	}
	return 0
}
