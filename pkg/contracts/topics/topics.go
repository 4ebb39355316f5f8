package topics

const (
	// Liquidações
	BetSettled  = "bet_settled"
	RoundClosed = "round_closed"

	// DLQs
	BetSettledDLQ = "bet_settled_dlq"
)
