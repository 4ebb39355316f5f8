package ws

// ClientMsg é a mensagem recebida do cliente WebSocket.
// Type: subscribe | unsubscribe | ping
// GameType: obrigatório em subscribe/unsubscribe (crash | color | car_race)
type ClientMsg struct {
	Type     string `json:"type"`
	GameType string `json:"gameType"`
}
