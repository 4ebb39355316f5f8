package engine

import "errors"

// Erros do engine. Nenhum é engolido: ou volta pro caller HTTP (4xx com
// errorKind) ou anula o round com estorno integral.
var (
	ErrInvalidStake    = errors.New("invalid stake")
	ErrInvalidGameType = errors.New("unknown game type")
	ErrBadPrediction   = errors.New("invalid prediction for game type")
	ErrRoundClosed     = errors.New("round closed")
	ErrRoundNotFound   = errors.New("round not found")
	ErrBetNotFound     = errors.New("bet not found")
	ErrAlreadyCashed   = errors.New("bet already cashed out")
	ErrPremiumRequired = errors.New("half cash-out requires premium tier balance")
)
