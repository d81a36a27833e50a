package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"pulsewave/internal/backtest"
	"pulsewave/internal/config"
	"pulsewave/internal/db"
	"pulsewave/internal/domain"
	"pulsewave/internal/engine"
	"pulsewave/internal/provider"
	"pulsewave/internal/repository"
	"pulsewave/internal/service"
	"pulsewave/pkg/tracing"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initTracerFunc         = tracing.InitTracer
	newCandleRepoFunc      = repository.NewCandleRepository
	newBinanceProviderFunc = func(tracer trace.Tracer) service.MarketProvider {
		return provider.NewBinanceProvider(tracer)
	}
	newMarketServiceFunc = service.NewMarketService
	exitFunc             = os.Exit
	outWriter            io.Writer = os.Stdout
)

type cliOptions struct {
	symbol   string
	interval string
	limit    int
	from     string
	to       string
	sizing   string
	capital  float64
	size     float64
	maxHeld  int
	csvPath  string
}

func parseFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	opts := cliOptions{}
	fs.StringVar(&opts.symbol, "symbol", "BTC", "asset symbol (BTC, ETH, ...)")
	fs.StringVar(&opts.interval, "interval", "1h", "candle interval (5m, 15m, 1h, 4h, 1d)")
	fs.IntVar(&opts.limit, "limit", 1000, "number of stored candles to replay")
	fs.StringVar(&opts.from, "from", "", "start of the replay window (RFC3339)")
	fs.StringVar(&opts.to, "to", "", "end of the replay window (RFC3339)")
	fs.StringVar(&opts.sizing, "sizing", "percent", "position sizing method (fixed, percent, atr, kelly)")
	fs.Float64Var(&opts.capital, "capital", 100000, "initial capital")
	fs.Float64Var(&opts.size, "size", 0, "position size parameter (0 keeps the sizing default)")
	fs.IntVar(&opts.maxHeld, "max-held", 0, "maximum bars a position is held (0 keeps the default)")
	fs.StringVar(&opts.csvPath, "csv", "", "replay candles from a CSV file instead of the database")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func buildConfig(opts cliOptions) (backtest.Config, error) {
	cfg := backtest.DefaultConfig()

	method := domain.SizingMethod(opts.sizing)
	switch method {
	case domain.SizingFixed, domain.SizingPercent, domain.SizingATR, domain.SizingKelly:
		cfg.Sizing = method
	default:
		return cfg, fmt.Errorf("unsupported sizing method: %s", opts.sizing)
	}
	if opts.capital > 0 {
		cfg.InitialCapital = opts.capital
	}
	if opts.size > 0 {
		cfg.PositionSize = opts.size
	}
	if opts.maxHeld > 0 {
		cfg.MaxBarsHeld = opts.maxHeld
	}
	return cfg, nil
}

func parseWindow(opts cliOptions) (from, to time.Time, err error) {
	if opts.from != "" {
		if from, err = time.Parse(time.RFC3339, opts.from); err != nil {
			return from, to, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if opts.to != "" {
		if to, err = time.Parse(time.RFC3339, opts.to); err != nil {
			return from, to, fmt.Errorf("invalid -to: %w", err)
		}
	}
	return from, to, nil
}

// loadCandlesCSV reads bars from a CSV with columns
// open_time,open,high,low,close,volume. open_time is RFC3339 or unix
// seconds. A header row is skipped when the first field doesn't parse.
func loadCandlesCSV(r io.Reader, symbol, interval string) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6

	var bars []domain.Candle
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		openTime, err := parseCSVTime(record[0])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		fields := make([]float64, 5)
		for i := 0; i < 5; i++ {
			if fields[i], err = strconv.ParseFloat(record[i+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}

		bars = append(bars, domain.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: openTime,
			Open:     fields[0],
			High:     fields[1],
			Low:      fields[2],
			Close:    fields[3],
			Volume:   fields[4],
		})
	}

	if err := domain.ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseCSVTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable open_time %q", raw)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		exitFunc(2)
		return
	}

	if _, ok := domain.BinancePair[opts.symbol]; !ok {
		log.Printf("unsupported symbol: %s", opts.symbol)
		exitFunc(1)
		return
	}
	if !domain.IsSupportedInterval(opts.interval) {
		log.Printf("unsupported interval: %s", opts.interval)
		exitFunc(1)
		return
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		log.Print(err)
		exitFunc(1)
		return
	}
	from, to, err := parseWindow(opts)
	if err != nil {
		log.Print(err)
		exitFunc(1)
		return
	}

	ctx := context.Background()

	var bars []domain.Candle
	if opts.csvPath != "" {
		f, err := os.Open(opts.csvPath)
		if err != nil {
			log.Printf("open csv: %v", err)
			exitFunc(1)
			return
		}
		bars, err = loadCandlesCSV(f, opts.symbol, opts.interval)
		f.Close()
		if err != nil {
			log.Printf("load csv: %v", err)
			exitFunc(1)
			return
		}
	} else {
		loadEnvFunc()
		appCfg := loadConfigFunc()
		os.Setenv("DATABASE_URL", appCfg.DatabaseURL)
		os.Setenv("REDIS_URL", appCfg.RedisURL)
		os.Setenv("TRACING_ENABLED", "false")
		initPostgresFunc(ctx)

		tp, tracer, err := initTracerFunc(ctx)
		if err != nil {
			log.Printf("init tracer: %v", err)
			exitFunc(1)
			return
		}
		defer tp.Shutdown(ctx)

		candleRepo := newCandleRepoFunc(db.Pool, tracer)
		binance := newBinanceProviderFunc(tracer)
		market := newMarketServiceFunc(tracer, binance, candleRepo, nil)

		bars, err = market.GetCandles(ctx, opts.symbol, opts.interval, opts.limit)
		if err != nil {
			log.Printf("load candles: %v", err)
			exitFunc(1)
			return
		}
	}

	synthesizer := engine.NewSignalSynthesizer(engine.DefaultSignalConfig())
	sim := backtest.NewSimulator(synthesizer, cfg)

	result, err := sim.Run(ctx, bars, from, to)
	if err != nil {
		log.Printf("backtest failed: %v", err)
		exitFunc(1)
		return
	}

	fmt.Fprint(outWriter, renderReport(opts.symbol, opts.interval, cfg, result))
}
