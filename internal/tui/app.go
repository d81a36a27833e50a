package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pulsewave/internal/domain"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MarketClient serves price snapshots for the dashboard header.
type MarketClient interface {
	GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
}

// AnalysisClient serves the engine output shown in the detail pane.
type AnalysisClient interface {
	LatestSignal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error)
	Levels(ctx context.Context, symbol, interval string) (domain.SRResult, error)
	Regime(ctx context.Context, symbol, interval string) (domain.RegimeResult, error)
}

// Services bundles everything an SSH session's dashboard needs.
type Services struct {
	Market   MarketClient
	Analysis AnalysisClient
	Username string
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	longStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	shortStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	neutralStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// symbolData is everything the detail pane shows for one symbol.
type symbolData struct {
	symbol   string
	snapshot *domain.PriceSnapshot
	signal   domain.TradingSignal
	levels   domain.SRResult
	regime   domain.RegimeResult
}

type dataMsg struct {
	data symbolData
	err  error
}

// AppModel is the root bubbletea model for one SSH session.
type AppModel struct {
	svc      Services
	symbols  []string
	interval string

	cursor  int
	width   int
	height  int
	loading bool
	err     error
	data    *symbolData
	spin    spinner.Model
}

func NewAppModel(svc Services) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = dimStyle
	return &AppModel{
		svc:      svc,
		symbols:  domain.SupportedSymbols,
		interval: "1h",
		spin:     s,
	}
}

// SetSize is called by the wish middleware with the session's pty size.
func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *AppModel) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spin.Tick, m.fetchCmd(m.symbols[m.cursor], m.interval))
}

func (m *AppModel) fetchCmd(symbol, interval string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		data := symbolData{symbol: symbol}

		signal, err := svc.Analysis.LatestSignal(ctx, symbol, []string{interval})
		if err != nil {
			return dataMsg{err: err}
		}
		data.signal = signal

		if data.levels, err = svc.Analysis.Levels(ctx, symbol, interval); err != nil {
			return dataMsg{err: err}
		}
		if data.regime, err = svc.Analysis.Regime(ctx, symbol, interval); err != nil {
			return dataMsg{err: err}
		}
		if svc.Market != nil {
			// Price is decoration; the signal already carries an entry price.
			data.snapshot, _ = svc.Market.GetCurrentPrice(ctx, symbol)
		}
		return dataMsg{data: data}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case dataMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		data := msg.data
		m.data = &data
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m.refresh()
		case "down", "j":
			if m.cursor < len(m.symbols)-1 {
				m.cursor++
			}
			return m.refresh()
		case "tab":
			m.interval = nextInterval(m.interval)
			return m.refresh()
		case "r", "enter":
			return m.refresh()
		}
	}
	return m, nil
}

func (m *AppModel) refresh() (tea.Model, tea.Cmd) {
	m.loading = true
	m.err = nil
	return m, tea.Batch(m.spin.Tick, m.fetchCmd(m.symbols[m.cursor], m.interval))
}

func nextInterval(current string) string {
	for i, interval := range domain.SupportedIntervals {
		if interval == current {
			return domain.SupportedIntervals[(i+1)%len(domain.SupportedIntervals)]
		}
	}
	return domain.SupportedIntervals[0]
}

func (m *AppModel) View() string {
	header := titleStyle.Render("pulsewave") + dimStyle.Render("  interval: "+m.interval)
	if m.svc.Username != "" {
		header += dimStyle.Render("  user: " + m.svc.Username)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(m.symbolList()),
		paneStyle.Render(m.detailPane()),
	)

	help := dimStyle.Render("↑/↓ symbol · tab interval · r refresh · q quit")
	return header + "\n" + body + "\n" + help
}

func (m *AppModel) symbolList() string {
	var sb strings.Builder
	for i, symbol := range m.symbols {
		line := "  " + symbol
		if i == m.cursor {
			line = selectedStyle.Render("> " + symbol)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *AppModel) detailPane() string {
	if m.err != nil {
		return errStyle.Render("error: " + m.err.Error())
	}
	if m.loading || m.data == nil {
		return m.spin.View() + dimStyle.Render(" loading "+m.symbols[m.cursor]+"...")
	}

	d := m.data
	var sb strings.Builder

	if d.snapshot != nil {
		sb.WriteString(fmt.Sprintf("%s  $%.2f  (24h %+.2f%%)\n\n",
			d.symbol, d.snapshot.PriceUSD, d.snapshot.Change24hPct))
	} else {
		sb.WriteString(d.symbol + "\n\n")
	}

	sb.WriteString(renderDirection(d.signal.Direction))
	sb.WriteString(fmt.Sprintf("  confidence %.0f  confluence %.1f\n", d.signal.Confidence, d.signal.ConfluenceScore))
	if d.signal.Direction != domain.DirectionNeutral {
		sb.WriteString(fmt.Sprintf("entry %.2f  stop %.2f  target %.2f  r/r %.2f\n",
			d.signal.EntryPrice, d.signal.StopLoss, d.signal.TakeProfit, d.signal.RiskRewardRatio))
	}
	for _, reason := range d.signal.Reasoning {
		sb.WriteString(dimStyle.Render("  · "+reason) + "\n")
	}

	sb.WriteString(fmt.Sprintf("\nregime: %s (%.0f%%)\n", d.regime.Regime, d.regime.Confidence))

	if len(d.levels.Levels) > 0 {
		sb.WriteString("\nlevels:\n")
		for i, level := range d.levels.Levels {
			if i >= 6 {
				break
			}
			kind := "S"
			style := longStyle
			if level.IsResistance {
				kind = "R"
				style = shortStyle
			}
			sb.WriteString(fmt.Sprintf("  %s %9.2f  %s\n",
				style.Render(kind), level.Mid,
				dimStyle.Render(fmt.Sprintf("strength %d, %+.1f%%", level.Strength, level.DistancePct))))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func renderDirection(direction domain.SignalDirection) string {
	switch direction {
	case domain.DirectionLong:
		return longStyle.Render("LONG")
	case domain.DirectionShort:
		return shortStyle.Render("SHORT")
	default:
		return neutralStyle.Render("NEUTRAL")
	}
}
