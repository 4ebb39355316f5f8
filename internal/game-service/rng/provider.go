package rng

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrProviderFailure indica fonte de entropia indisponível; o round que
// depender do sorteio deve ser anulado, nunca liquidado.
var ErrProviderFailure = errors.New("random source unavailable")

// Color do color-prediction.
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorViolet Color = "violet"
)

// CarCount é o grid fixo da corrida (ids 1..4).
const CarCount = 4

// Seed é o material de fairness de um round: o server seed é sorteado via
// CSPRNG na abertura, o commit sha256 é publicado imediatamente e o seed
// só é revelado com o resultado. Qualquer um recomputa o sorteio a partir
// do par (seed, roundID).
type Seed struct {
	Server string `json:"serverSeed"`
	Commit string `json:"commit"`
}

// Provider gera os resultados pseudo-aleatórios de cada jogo.
// Entropy é trocável em teste pra simular falha do provider.
type Provider struct {
	Entropy io.Reader
}

func New() *Provider { return &Provider{Entropy: rand.Reader} }

// NewSeed sorteia 32 bytes e calcula o commit.
func (p *Provider) NewSeed() (Seed, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(p.Entropy, buf); err != nil {
		return Seed{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	server := hex.EncodeToString(buf)
	commit := sha256.Sum256([]byte(server))
	return Seed{Server: server, Commit: hex.EncodeToString(commit[:])}, nil
}

// VerifyCommit confere que o seed revelado bate com o commit publicado.
func VerifyCommit(seed Seed) bool {
	sum := sha256.Sum256([]byte(seed.Server))
	return hex.EncodeToString(sum[:]) == seed.Commit
}

// uniform deriva o n-ésimo uniforme em [0,1) de um round:
// HMAC-SHA256(serverSeed, roundID:n), 53 bits de mantissa.
func uniform(seed Seed, roundID string, n int) float64 {
	mac := hmac.New(sha256.New, []byte(seed.Server))
	fmt.Fprintf(mac, "%s:%d", roundID, n)
	sum := mac.Sum(nil)
	v := binary.BigEndian.Uint64(sum[:8]) >> 11
	return float64(v) / float64(uint64(1)<<53)
}

// Bandas do multiplicador de crash, em centésimos:
// 50% em [1.00, 2.50), 30% em [2.50, 5.00), 15% em [5.00, 15.00),
// 5% em [15.00, 50.00); uniforme dentro da banda.
var crashBands = []struct {
	p      float64
	lo, hi int64
}{
	{0.50, 100, 250},
	{0.80, 250, 500},
	{0.95, 500, 1500},
	{1.00, 1500, 5000},
}

// CrashPoint deriva o multiplicador de crash do round, em centésimos
// (250 = 2.50x). Piso 1.00.
func CrashPoint(seed Seed, roundID string) int64 {
	band := crashBands[len(crashBands)-1]
	u := uniform(seed, roundID, 0)
	for _, b := range crashBands {
		if u < b.p {
			band = b
			break
		}
	}

	v := uniform(seed, roundID, 1)
	point := band.lo + int64(v*float64(band.hi-band.lo))
	if point < 100 {
		point = 100
	}
	return point
}

// DrawColor deriva a cor vencedora: red 45%, green 45%, violet 10%.
func DrawColor(seed Seed, roundID string) Color {
	u := uniform(seed, roundID, 0)
	switch {
	case u < 0.45:
		return ColorRed
	case u < 0.90:
		return ColorGreen
	default:
		return ColorViolet
	}
}

// DrawCarOrder deriva a ordem de chegada: permutação uniforme dos ids
// 1..4 via Fisher-Yates sobre o stream do round (sem empates).
func DrawCarOrder(seed Seed, roundID string) []int {
	order := make([]int, CarCount)
	for i := range order {
		order[i] = i + 1
	}
	for i := CarCount - 1; i > 0; i-- {
		j := int(uniform(seed, roundID, i) * float64(i+1))
		if j > i {
			j = i
		}
		order[i], order[j] = order[j], order[i]
	}
	return order
}
