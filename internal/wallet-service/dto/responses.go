package dto

type SessionResponse struct {
	AccountID string `json:"accountId"`
	Username  string `json:"username"`
	Token     string `json:"token"`
}

type BalanceResponse struct {
	AccountID    string `json:"accountId"`
	BalanceCents int64  `json:"balanceCents"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
