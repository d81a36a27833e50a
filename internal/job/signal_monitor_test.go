package job

import (
	"context"
	"strings"
	"sync"
	"testing"

	"pulsewave/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubEvaluator struct {
	signals map[string]domain.TradingSignal
	err     error
	calls   []string
}

func (s *stubEvaluator) Signal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error) {
	s.calls = append(s.calls, symbol)
	if s.err != nil {
		return domain.TradingSignal{}, s.err
	}
	return s.signals[symbol], nil
}

type stubNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (s *stubNotifier) Broadcast(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *stubNotifier) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func testMonitor(eval SignalEvaluator, notifier Notifier) *SignalMonitor {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	return NewSignalMonitor(tracer, eval, notifier, []string{"1h"}, 300)
}

func TestSignalMonitorBroadcastsNonNeutral(t *testing.T) {
	first := domain.SupportedSymbols[0]
	eval := &stubEvaluator{signals: map[string]domain.TradingSignal{
		first: {Direction: domain.DirectionLong, EntryPrice: 50000, Confidence: 70},
	}}
	notifier := &stubNotifier{}
	monitor := testMonitor(eval, notifier)

	monitor.evaluateNext(context.Background())

	msgs := notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0], first) || !strings.Contains(msgs[0], "LONG") {
		t.Fatalf("unexpected message: %s", msgs[0])
	}
}

func TestSignalMonitorSkipsNeutral(t *testing.T) {
	eval := &stubEvaluator{signals: map[string]domain.TradingSignal{}}
	notifier := &stubNotifier{}
	monitor := testMonitor(eval, notifier)

	for range domain.SupportedSymbols {
		monitor.evaluateNext(context.Background())
	}

	if len(notifier.messages()) != 0 {
		t.Fatalf("neutral signals must not broadcast, got %v", notifier.messages())
	}
	if len(eval.calls) != len(domain.SupportedSymbols) {
		t.Fatalf("expected a full sweep, got %v", eval.calls)
	}
}

func TestSignalMonitorSuppressesRepeats(t *testing.T) {
	first := domain.SupportedSymbols[0]
	eval := &stubEvaluator{signals: map[string]domain.TradingSignal{
		first: {Direction: domain.DirectionShort, EntryPrice: 3000},
	}}
	notifier := &stubNotifier{}
	monitor := testMonitor(eval, notifier)

	// Two full sweeps: the second visit re-confirms the same direction.
	for i := 0; i < 2*len(domain.SupportedSymbols); i++ {
		monitor.evaluateNext(context.Background())
	}

	if len(notifier.messages()) != 1 {
		t.Fatalf("expected a single alert for an unchanged direction, got %d", len(notifier.messages()))
	}
}

func TestSignalMonitorRoundRobin(t *testing.T) {
	eval := &stubEvaluator{signals: map[string]domain.TradingSignal{}}
	monitor := testMonitor(eval, nil)

	monitor.evaluateNext(context.Background())
	monitor.evaluateNext(context.Background())

	if len(eval.calls) != 2 || eval.calls[0] == eval.calls[1] {
		t.Fatalf("expected distinct symbols, got %v", eval.calls)
	}
}

func TestFormatSignalAlert(t *testing.T) {
	msg := FormatSignalAlert("BTC", domain.TradingSignal{
		Direction:       domain.DirectionLong,
		EntryPrice:      50000,
		StopLoss:        48500,
		TakeProfit:      53000,
		RiskRewardRatio: 2,
		Confidence:      65,
		Reasoning:       []string{"Price at support cluster"},
	})

	for _, want := range []string{"BTC", "LONG", "50000.00", "48500.00", "53000.00", "Price at support cluster"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q: %s", want, msg)
		}
	}
}
