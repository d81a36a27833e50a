package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"pulsewave/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SignalEvaluator computes a fresh trading signal for one symbol.
type SignalEvaluator interface {
	Signal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error)
}

// Notifier pushes alert text to subscribed channels.
type Notifier interface {
	Broadcast(msg string)
}

// SignalMonitor periodically re-evaluates signals across the supported
// symbols and broadcasts actionable ones. Symbols are visited round-robin,
// one per tick, so a full sweep takes len(symbols) ticks.
type SignalMonitor struct {
	tracer       trace.Tracer
	analysis     SignalEvaluator
	notifier     Notifier
	timeframes   []string
	pollInterval time.Duration

	symbolIndex   int
	lastDirection map[string]domain.SignalDirection
}

func NewSignalMonitor(
	tracer trace.Tracer,
	analysis SignalEvaluator,
	notifier Notifier,
	timeframes []string,
	pollIntervalSecs int,
) *SignalMonitor {
	if len(timeframes) == 0 {
		timeframes = []string{"1h", "4h"}
	}
	return &SignalMonitor{
		tracer:        tracer,
		analysis:      analysis,
		notifier:      notifier,
		timeframes:    timeframes,
		pollInterval:  time.Duration(pollIntervalSecs) * time.Second,
		lastDirection: make(map[string]domain.SignalDirection),
	}
}

// Start blocks until ctx is cancelled, evaluating one symbol per tick.
func (m *SignalMonitor) Start(ctx context.Context) {
	log.Printf("Signal monitor starting (timeframes %v, every %v)", m.timeframes, m.pollInterval)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Signal monitor stopped")
			return
		case <-ticker.C:
			m.evaluateNext(ctx)
		}
	}
}

func (m *SignalMonitor) evaluateNext(ctx context.Context) {
	symbols := domain.SupportedSymbols
	symbol := symbols[m.symbolIndex%len(symbols)]
	m.symbolIndex++

	ctx, span := m.tracer.Start(ctx, "signal-monitor.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	signal, err := m.analysis.Signal(ctx, symbol, m.timeframes)
	if err != nil {
		log.Printf("signal evaluation error for %s: %v", symbol, err)
		return
	}

	// Alert only on transitions into a non-neutral stance, not on every
	// sweep that re-confirms the same direction.
	prev := m.lastDirection[symbol]
	m.lastDirection[symbol] = signal.Direction
	if signal.Direction == domain.DirectionNeutral || signal.Direction == prev {
		return
	}

	if m.notifier != nil {
		m.notifier.Broadcast(FormatSignalAlert(symbol, signal))
	}
	log.Printf("Signal alert: %s %s @ %.2f (confidence %.0f)",
		symbol, signal.Direction, signal.EntryPrice, signal.Confidence)
}

// FormatSignalAlert renders a signal as a Telegram-ready alert message.
func FormatSignalAlert(symbol string, signal domain.TradingSignal) string {
	emoji := "🟢"
	if signal.Direction == domain.DirectionShort {
		emoji = "🔴"
	}
	msg := fmt.Sprintf("%s %s %s\nEntry: %.2f\nStop: %.2f\nTarget: %.2f\nR/R: %.2f | Confidence: %.0f%%",
		emoji, symbol, signal.Direction,
		signal.EntryPrice, signal.StopLoss, signal.TakeProfit,
		signal.RiskRewardRatio, signal.Confidence)
	for _, reason := range signal.Reasoning {
		msg += "\n• " + reason
	}
	return msg
}
