package dto

type PlaceBetRequest struct {
	GameType   string `json:"gameType"`   // crash | color | car_race
	StakeCents int64  `json:"stakeCents"`
	Prediction string `json:"prediction"` // color: "red"; car: "3" ou "3:2"; crash: "" ou alvo "2.50"
}

type CashoutRequest struct {
	Multiplier string `json:"multiplier,omitempty"` // "2.50"; vazio = multiplicador corrente
}
