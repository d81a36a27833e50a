package advisor

import (
	"fmt"
	"strings"
	"time"

	"pulsewave/internal/domain"

	"github.com/openai/openai-go"
)

const briefingPhilosophy = `You are a crypto trading briefing bot. Your role is to interpret technical analysis output from a rule-based signal engine, NOT to generate signals yourself.

Rules:
- Only reference the levels, prices, and scores provided below. Never fabricate data.
- Explain WHY the engine arrived at its stance, in plain language, using the provided reasoning and regime.
- A NEUTRAL stance is a valid outcome; say what would need to change for a setup to form.
- Express uncertainty when confidence is low or the regime conflicts with the signal direction.
- Keep it short: three to five sentences. This is read on a phone.
- No financial advice disclaimers. The reader understands this is informational.`

// BuildBriefingMessages assembles the chat messages for one briefing call.
func BuildBriefingMessages(
	symbol, interval string,
	snapshot *domain.PriceSnapshot,
	signal domain.TradingSignal,
	regime domain.RegimeResult,
) []openai.ChatCompletionMessageParamUnion {
	system := briefingPhilosophy +
		"\n\n--- ENGINE OUTPUT (as of " + time.Now().UTC().Format(time.RFC822) + ") ---\n" +
		FormatSignalContext(symbol, interval, snapshot, signal, regime)

	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(fmt.Sprintf("Give me the current briefing for %s on the %s timeframe.", symbol, interval)),
	}
}

// FormatSignalContext renders the engine output as plain text for the prompt.
func FormatSignalContext(
	symbol, interval string,
	snapshot *domain.PriceSnapshot,
	signal domain.TradingSignal,
	regime domain.RegimeResult,
) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Symbol: %s (%s)\n", symbol, interval))
	if snapshot != nil {
		sb.WriteString(fmt.Sprintf("Price: $%.2f (24h: %+.2f%%, vol: $%.0f)\n",
			snapshot.PriceUSD, snapshot.Change24hPct, snapshot.Volume24h))
	}

	sb.WriteString(fmt.Sprintf("Stance: %s (confidence %.0f, confluence %.1f)\n",
		signal.Direction, signal.Confidence, signal.ConfluenceScore))
	if signal.Direction != domain.DirectionNeutral {
		sb.WriteString(fmt.Sprintf("Entry: %.2f  Stop: %.2f  Target: %.2f  R/R: %.2f\n",
			signal.EntryPrice, signal.StopLoss, signal.TakeProfit, signal.RiskRewardRatio))
	}
	if len(signal.Reasoning) > 0 {
		sb.WriteString("Reasoning:\n")
		for _, reason := range signal.Reasoning {
			sb.WriteString("  - " + reason + "\n")
		}
	}

	sb.WriteString(fmt.Sprintf("Regime: %s (confidence %.0f)\n", regime.Regime, regime.Confidence))

	for tf, sr := range signal.SRContext {
		if len(sr.Levels) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("Key levels (%s):\n", tf))
		for i, level := range sr.Levels {
			if i >= 5 {
				break
			}
			kind := "support"
			if level.IsResistance {
				kind = "resistance"
			}
			sb.WriteString(fmt.Sprintf("  %s %.2f (strength %d, %.1f%% away)\n",
				kind, level.Mid, level.Strength, level.DistancePct))
		}
	}

	return sb.String()
}
