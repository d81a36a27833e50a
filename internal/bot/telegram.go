package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"pulsewave/internal/advisor"
	"pulsewave/internal/domain"
	"pulsewave/internal/job"

	tele "gopkg.in/telebot.v3"
)

// MarketReader is the market data slice the bot commands use.
type MarketReader interface {
	GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
}

// AnalysisReader serves signals and regime classifications on demand.
type AnalysisReader interface {
	LatestSignal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error)
	Regime(ctx context.Context, symbol, interval string) (domain.RegimeResult, error)
}

// Briefer produces LLM briefings. Nil disables the /brief command.
type Briefer interface {
	Brief(ctx context.Context, symbol, interval string) (string, error)
}

var sendMessage = func(b *tele.Bot, to tele.Recipient, msg string) error {
	_, err := b.Send(to, msg)
	return err
}

// Bot wraps the Telegram bot plus the subscriber set used for alert
// broadcasts from the signal monitor.
type Bot struct {
	bot *tele.Bot

	mu          sync.Mutex
	subscribers map[int64]struct{}
}

// StartTelegramBot creates and starts the bot in a background goroutine.
// Returns nil when TELEGRAM_BOT_TOKEN is unset, which disables both the
// commands and monitor broadcasts.
func StartTelegramBot(market MarketReader, analysis AnalysisReader, briefer Briefer) *Bot {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	bot := &Bot{bot: b, subscribers: make(map[int64]struct{})}
	bot.registerHandlers(market, analysis, briefer)

	log.Println("Telegram bot started")
	go b.Start()
	return bot
}

func (t *Bot) registerHandlers(market MarketReader, analysis AnalysisReader, briefer Briefer) {
	t.bot.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	t.bot.Handle("/price", func(c tele.Context) error {
		symbol, ok := symbolArg(c)
		if !ok {
			return c.Send(usage("/price BTC"))
		}
		snapshot, err := market.GetCurrentPrice(context.Background(), symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching price for %s: %v", symbol, err))
		}
		return c.Send(formatPrice(snapshot))
	})

	t.bot.Handle("/signal", func(c tele.Context) error {
		symbol, ok := symbolArg(c)
		if !ok {
			return c.Send(usage("/signal BTC [interval]"))
		}
		timeframes := []string{"1h"}
		if args := c.Args(); len(args) > 1 && domain.IsSupportedInterval(args[1]) {
			timeframes = []string{args[1]}
		}
		signal, err := analysis.LatestSignal(context.Background(), symbol, timeframes)
		if err != nil {
			return c.Send(fmt.Sprintf("Error computing signal for %s: %v", symbol, err))
		}
		if signal.Direction == domain.DirectionNeutral {
			return c.Send(fmt.Sprintf("%s: no setup right now (price %.2f)", symbol, signal.EntryPrice))
		}
		return c.Send(job.FormatSignalAlert(symbol, signal))
	})

	t.bot.Handle("/regime", func(c tele.Context) error {
		symbol, ok := symbolArg(c)
		if !ok {
			return c.Send(usage("/regime BTC [interval]"))
		}
		interval := "1h"
		if args := c.Args(); len(args) > 1 && domain.IsSupportedInterval(args[1]) {
			interval = args[1]
		}
		result, err := analysis.Regime(context.Background(), symbol, interval)
		if err != nil {
			return c.Send(fmt.Sprintf("Error classifying regime for %s: %v", symbol, err))
		}
		return c.Send(formatRegime(symbol, interval, result))
	})

	t.bot.Handle("/brief", func(c tele.Context) error {
		if briefer == nil {
			return c.Send("Briefings are disabled (no OpenAI API key configured)")
		}
		// /brief takes a symbol argument, but free text like
		// "/brief how is btc doing" works too.
		symbol, ok := symbolArg(c)
		if !ok {
			if found := advisor.ExtractSymbols(c.Message().Text); len(found) > 0 {
				symbol = found[0]
			} else {
				return c.Send(usage("/brief BTC [interval]"))
			}
		}
		interval := ""
		if args := c.Args(); len(args) > 1 && domain.IsSupportedInterval(args[1]) {
			interval = args[1]
		}
		briefing, err := briefer.Brief(context.Background(), symbol, interval)
		if err != nil {
			return c.Send(fmt.Sprintf("Briefing for %s failed: %v", symbol, err))
		}
		return c.Send(briefing)
	})

	t.bot.Handle("/subscribe", func(c tele.Context) error {
		t.addSubscriber(c.Chat().ID)
		return c.Send("Subscribed to signal alerts")
	})

	t.bot.Handle("/unsubscribe", func(c tele.Context) error {
		t.removeSubscriber(c.Chat().ID)
		return c.Send("Unsubscribed from signal alerts")
	})
}

// Broadcast sends msg to every subscribed chat. Implements job.Notifier.
func (t *Bot) Broadcast(msg string) {
	t.mu.Lock()
	ids := make([]int64, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		if err := sendMessage(t.bot, tele.ChatID(id), msg); err != nil {
			log.Printf("broadcast to chat %d failed: %v", id, err)
		}
	}
}

func (t *Bot) addSubscriber(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[id] = struct{}{}
}

func (t *Bot) removeSubscriber(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, id)
}

func symbolArg(c tele.Context) (string, bool) {
	args := c.Args()
	if len(args) == 0 {
		return "", false
	}
	symbol := strings.ToUpper(args[0])
	if _, ok := domain.BinancePair[symbol]; !ok {
		return "", false
	}
	return symbol, true
}

func usage(example string) string {
	return fmt.Sprintf("Usage: %s\nSupported: %s", example, strings.Join(domain.SupportedSymbols, ", "))
}

func formatPrice(snapshot *domain.PriceSnapshot) string {
	return fmt.Sprintf(
		"%s\nPrice: $%.2f\n24h Change: %.2f%%\n24h Volume: $%.0f",
		snapshot.Symbol, snapshot.PriceUSD, snapshot.Change24hPct, snapshot.Volume24h,
	)
}

func formatRegime(symbol, interval string, result domain.RegimeResult) string {
	return fmt.Sprintf(
		"%s %s regime: %s\nConfidence: %.0f%%",
		symbol, interval, result.Regime, result.Confidence,
	)
}
