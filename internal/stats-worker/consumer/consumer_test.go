package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	ev "github.com/radieske/casino-games-platform-poc/pkg/contracts/events"
)

type fakeReader struct {
	msgs []kafkago.Message
	i    int
}

func (f *fakeReader) ReadMessage(context.Context) (kafkago.Message, error) {
	if f.i >= len(f.msgs) {
		return kafkago.Message{}, io.EOF
	}
	m := f.msgs[f.i]
	f.i++
	return m, nil
}

type fakeSink struct {
	mu      sync.Mutex
	applied []ev.BetSettled
	fail    bool
}

func (f *fakeSink) Apply(_ context.Context, e ev.BetSettled) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink down")
	}
	f.applied = append(f.applied, e)
	return nil
}

type fakeDLQ struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (f *fakeDLQ) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func settledMsg(t *testing.T, e ev.BetSettled) kafkago.Message {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafkago.Message{Key: []byte(e.AccountID), Value: b}
}

func TestDeltaFor(t *testing.T) {
	cases := []struct {
		name string
		e    ev.BetSettled
		want Delta
	}{
		{"win", ev.BetSettled{Status: "SETTLED", StakeCents: 100, PayoutCents: 250}, Delta{Wins: 1, NetCents: 150}},
		{"loss", ev.BetSettled{Status: "SETTLED", StakeCents: 100, PayoutCents: 0}, Delta{Losses: 1, NetCents: -100}},
		{"void does not count as loss", ev.BetSettled{Status: "VOID", StakeCents: 100, PayoutCents: 100}, Delta{Voids: 1}},
	}
	for _, tc := range cases {
		if got := DeltaFor(tc.e); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestConsumer_AppliesSettledEvents(t *testing.T) {
	sink := &fakeSink{}
	dlq := &fakeDLQ{}
	r := &fakeReader{msgs: []kafkago.Message{
		settledMsg(t, ev.BetSettled{BetID: "b1", AccountID: "a1", Status: "SETTLED", StakeCents: 100, PayoutCents: 200}),
		settledMsg(t, ev.BetSettled{BetID: "b2", AccountID: "a2", Status: "VOID", StakeCents: 50, PayoutCents: 50}),
	}}

	c := New(zap.NewNop(), r, sink, dlq)
	for _, m := range r.msgs {
		c.processOne(context.Background(), m)
	}

	if len(sink.applied) != 2 {
		t.Fatalf("applied %d events, want 2", len(sink.applied))
	}
	if sink.applied[0].BetID != "b1" || sink.applied[1].BetID != "b2" {
		t.Fatalf("applied out of order: %+v", sink.applied)
	}
	if len(dlq.msgs) != 0 {
		t.Fatalf("healthy events went to DLQ: %d", len(dlq.msgs))
	}
}

func TestConsumer_GarbageGoesToDLQ(t *testing.T) {
	sink := &fakeSink{}
	dlq := &fakeDLQ{}
	c := New(zap.NewNop(), &fakeReader{}, sink, dlq)

	c.processOne(context.Background(), kafkago.Message{Key: []byte("k"), Value: []byte("{not json")})

	if len(sink.applied) != 0 {
		t.Fatalf("garbage reached the sink")
	}
	if len(dlq.msgs) != 1 || string(dlq.msgs[0].Value) != "{not json" {
		t.Fatalf("dlq = %+v, want the original payload", dlq.msgs)
	}
}

func TestConsumer_SinkFailureGoesToDLQAfterRetries(t *testing.T) {
	sink := &fakeSink{fail: true}
	dlq := &fakeDLQ{}
	c := New(zap.NewNop(), &fakeReader{}, sink, dlq)

	msg := settledMsg(t, ev.BetSettled{BetID: "b1", AccountID: "a1", Status: "SETTLED", StakeCents: 100})
	c.processOne(context.Background(), msg)

	if len(dlq.msgs) != 1 {
		t.Fatalf("failed event not parked in DLQ")
	}
}
