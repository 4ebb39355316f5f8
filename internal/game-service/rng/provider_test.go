package rng

import (
	"errors"
	"fmt"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy down") }

func TestNewSeed_CommitMatchesSeed(t *testing.T) {
	p := New()
	seed, err := p.NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	if len(seed.Server) != 64 || len(seed.Commit) != 64 {
		t.Errorf("seed/commit should be 32 bytes hex: %d/%d", len(seed.Server), len(seed.Commit))
	}
	if !VerifyCommit(seed) {
		t.Error("commit must verify against revealed seed")
	}

	tampered := seed
	tampered.Server = tampered.Server[:63] + "0"
	if tampered.Server != seed.Server && VerifyCommit(tampered) {
		t.Error("tampered seed must not verify")
	}
}

func TestNewSeed_EntropyFailure(t *testing.T) {
	p := &Provider{Entropy: failingReader{}}
	if _, err := p.NewSeed(); !errors.Is(err, ErrProviderFailure) {
		t.Errorf("expected ErrProviderFailure, got %v", err)
	}
}

func TestCrashPoint_Deterministic(t *testing.T) {
	seed := Seed{Server: "deadbeef", Commit: ""}
	a := CrashPoint(seed, "round-1")
	b := CrashPoint(seed, "round-1")
	if a != b {
		t.Errorf("same seed+round must give same point: %d vs %d", a, b)
	}
	if CrashPoint(seed, "round-2") == a && CrashPoint(seed, "round-3") == a {
		t.Error("different rounds should not all collide")
	}
}

func TestCrashPoint_Range(t *testing.T) {
	p := New()
	seed, _ := p.NewSeed()
	for i := 0; i < 1000; i++ {
		v := CrashPoint(seed, fmt.Sprintf("r%d", i))
		if v < 100 || v >= 5000 {
			t.Fatalf("crash point out of range: %d", v)
		}
	}
}

// Amostra 100k multiplicadores e confere as frequências das bandas
// (50/30/15/5%) com tolerância de ~1 ponto percentual.
func TestCrashPoint_BandFrequencies(t *testing.T) {
	p := New()
	seed, err := p.NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}

	const n = 100_000
	var counts [4]int
	for i := 0; i < n; i++ {
		v := CrashPoint(seed, fmt.Sprintf("freq-%d", i))
		switch {
		case v < 250:
			counts[0]++
		case v < 500:
			counts[1]++
		case v < 1500:
			counts[2]++
		default:
			counts[3]++
		}
	}

	want := [4]float64{0.50, 0.30, 0.15, 0.05}
	for i, c := range counts {
		got := float64(c) / n
		if diff := got - want[i]; diff > 0.01 || diff < -0.01 {
			t.Errorf("band %d: expected %.2f, got %.4f", i, want[i], got)
		}
	}
}

func TestDrawColor_Distribution(t *testing.T) {
	p := New()
	seed, _ := p.NewSeed()

	const n = 100_000
	counts := map[Color]int{}
	for i := 0; i < n; i++ {
		counts[DrawColor(seed, fmt.Sprintf("c%d", i))]++
	}

	check := func(c Color, want float64) {
		got := float64(counts[c]) / n
		if diff := got - want; diff > 0.01 || diff < -0.01 {
			t.Errorf("%s: expected %.2f, got %.4f", c, want, got)
		}
	}
	check(ColorRed, 0.45)
	check(ColorGreen, 0.45)
	check(ColorViolet, 0.10)
}

func TestDrawCarOrder_IsPermutation(t *testing.T) {
	p := New()
	seed, _ := p.NewSeed()

	for i := 0; i < 1000; i++ {
		order := DrawCarOrder(seed, fmt.Sprintf("car%d", i))
		if len(order) != CarCount {
			t.Fatalf("expected %d cars, got %d", CarCount, len(order))
		}
		seen := map[int]bool{}
		for _, id := range order {
			if id < 1 || id > CarCount || seen[id] {
				t.Fatalf("not a permutation: %v", order)
			}
			seen[id] = true
		}
	}
}

func TestDrawCarOrder_AllPositionsReachable(t *testing.T) {
	p := New()
	seed, _ := p.NewSeed()

	// carro 1 deve aparecer em todas as posições ao longo de muitas corridas
	positions := map[int]bool{}
	for i := 0; i < 2000; i++ {
		order := DrawCarOrder(seed, fmt.Sprintf("pos%d", i))
		for pos, id := range order {
			if id == 1 {
				positions[pos+1] = true
			}
		}
	}
	for pos := 1; pos <= CarCount; pos++ {
		if !positions[pos] {
			t.Errorf("car 1 never finished at position %d", pos)
		}
	}
}
