package history

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func entry(betID, account string, stake, payout int64, voided bool) Entry {
	net := payout - stake
	if voided {
		net = 0
	}
	return Entry{
		BetID:     betID,
		AccountID: account,
		GameType:  "color",
		Stake:     stake,
		Payout:    payout,
		NetCents:  net,
		Outcome:   "red",
		WasVoided: voided,
		SettledAt: time.Now(),
	}
}

func TestMemory_QueryMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(50)

	for i := 0; i < 5; i++ {
		e := entry(fmt.Sprintf("b%d", i), "a1", 100, 0, false)
		e.SettledAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := m.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := m.Query(ctx, "a1", 10, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	if got[0].BetID != "b4" || got[4].BetID != "b0" {
		t.Errorf("expected most recent first, got %s..%s", got[0].BetID, got[4].BetID)
	}
}

func TestMemory_LimitOffset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(50)
	for i := 0; i < 10; i++ {
		_ = m.Append(ctx, entry(fmt.Sprintf("b%d", i), "a1", 100, 0, false))
	}

	page, err := m.Query(ctx, "a1", 3, 4)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected page of 3, got %d", len(page))
	}
	if page[0].BetID != "b5" {
		t.Errorf("expected page to start at b5, got %s", page[0].BetID)
	}

	empty, _ := m.Query(ctx, "a1", 10, 99)
	if len(empty) != 0 {
		t.Errorf("offset past end should be empty, got %d", len(empty))
	}
}

func TestMemory_AppendIsIdempotentPerBet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(50)

	e := entry("b1", "a1", 100, 250, false)
	_ = m.Append(ctx, e)
	_ = m.Append(ctx, e)

	got, _ := m.Query(ctx, "a1", 10, 0)
	if len(got) != 1 {
		t.Errorf("duplicate append must be a no-op, got %d entries", len(got))
	}
}

func TestMemory_RetentionKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)
	for i := 0; i < 6; i++ {
		_ = m.Append(ctx, entry(fmt.Sprintf("b%d", i), "a1", 100, 0, false))
	}

	got, _ := m.Query(ctx, "a1", 10, 0)
	if len(got) != 3 {
		t.Fatalf("retention should keep 3, got %d", len(got))
	}
	if got[0].BetID != "b5" || got[2].BetID != "b3" {
		t.Errorf("retention kept wrong window: %s..%s", got[0].BetID, got[2].BetID)
	}
}

func TestFold_Aggregates(t *testing.T) {
	entries := []Entry{
		entry("b1", "a1", 100, 250, false), // win +150
		entry("b2", "a1", 100, 0, false),   // loss -100
		entry("b3", "a1", 100, 0, true),    // void, não conta
		entry("b4", "a1", 200, 900, false), // win +700
	}

	s := Fold(entries)
	if s.Wins != 2 || s.Losses != 1 || s.Voids != 1 {
		t.Errorf("wrong counts: %+v", s)
	}
	if s.NetCents != 150-100+700 {
		t.Errorf("expected net %d, got %d", 150-100+700, s.NetCents)
	}
}

func TestFold_EmptyHistory(t *testing.T) {
	s := Fold(nil)
	if s.Wins != 0 || s.Losses != 0 || s.NetCents != 0 {
		t.Errorf("empty history should fold to zero stats: %+v", s)
	}
}
