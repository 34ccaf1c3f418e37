package ui

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/holiman/uint256"

	"github.com/hlhdaiaaii/trophy-token/internal/crowdsale"
	"github.com/hlhdaiaaii/trophy-token/internal/logger"
	"github.com/hlhdaiaaii/trophy-token/internal/monitor"
	"github.com/hlhdaiaaii/trophy-token/internal/token"
)

const (
	refreshInterval = time.Second
	logPaneLines    = 8
	sparklineWidth  = 40
)

// KeyMap holds the dashboard key bindings.
type KeyMap struct {
	Quit key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

type tickMsg time.Time

// Dashboard is the watch TUI model. It reads sale state directly and
// receives throttled price updates as messages.
type Dashboard struct {
	ctrl   *crowdsale.Controller
	ledger *token.Ledger
	buffer *logger.LogBuffer
	msgCh  chan tea.Msg

	keyMap KeyMap
	width  int
	height int

	prices    *Sparkline
	lastPrice *monitor.PriceUpdate

	titleStyle  lipgloss.Style
	labelStyle  lipgloss.Style
	valueStyle  lipgloss.Style
	statusStyle lipgloss.Style
	errorStyle  lipgloss.Style
	warnStyle   lipgloss.Style
	panelStyle  lipgloss.Style
	mutedStyle  lipgloss.Style
}

// NewDashboard creates the watch model. msgCh is the throttler's output
// channel; price updates arrive there as tea messages.
func NewDashboard(ctrl *crowdsale.Controller, ledger *token.Ledger,
	buffer *logger.LogBuffer, msgCh chan tea.Msg) *Dashboard {

	palette := DefaultPalette()
	return &Dashboard{
		ctrl:   ctrl,
		ledger: ledger,
		buffer: buffer,
		msgCh:  msgCh,
		keyMap: DefaultKeyMap(),
		prices: NewSparkline(sparklineWidth),

		titleStyle: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			Margin(1, 0).
			Align(lipgloss.Center),

		labelStyle: lipgloss.NewStyle().
			Foreground(palette.TextMuted),

		valueStyle: lipgloss.NewStyle().
			Foreground(palette.Text).
			Bold(true),

		statusStyle: lipgloss.NewStyle().
			Foreground(palette.Success).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(palette.Error),

		warnStyle: lipgloss.NewStyle().
			Foreground(palette.Warning),

		panelStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.TextMuted).
			Padding(1, 2).
			Margin(0, 1),

		mutedStyle: lipgloss.NewStyle().
			Foreground(palette.TextMuted),
	}
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.tick(), d.listen(), tea.EnterAltScreen)
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listen waits for the next throttled message from the monitor.
func (d *Dashboard) listen() tea.Cmd {
	return func() tea.Msg {
		return <-d.msgCh
	}
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		return d, nil

	case tea.KeyMsg:
		if key.Matches(msg, d.keyMap.Quit) {
			return d, tea.Quit
		}
		return d, nil

	case tickMsg:
		return d, d.tick()

	case monitor.PriceUpdate:
		d.lastPrice = &msg
		d.prices.Push(msg.PriceNative)
		if msg.Percent < 0 {
			d.prices.SetColor(DefaultPalette().Down)
		} else {
			d.prices.SetColor(DefaultPalette().Up)
		}
		return d, d.listen()

	default:
		return d, nil
	}
}

func (d *Dashboard) View() string {
	if d.width == 0 || d.height == 0 {
		return "Initializing..."
	}

	title := d.titleStyle.Width(d.width).Render(
		fmt.Sprintf("%s (%s) sale watch", d.ledger.Name(), d.ledger.Symbol()))

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		d.panelStyle.Render(d.salePanel()),
		d.panelStyle.Render(d.marketPanel()),
	)
	logs := d.panelStyle.Width(d.width - 4).Render(d.logPanel())

	footer := d.mutedStyle.Render("  q quit")
	return lipgloss.JoinVertical(lipgloss.Left, title, panels, logs, footer)
}

func (d *Dashboard) salePanel() string {
	status := d.ctrl.Status()
	current := d.ctrl.CurrentCap()
	hard := d.ctrl.HardCap()

	var b strings.Builder
	b.WriteString(d.valueStyle.Render("Sale") + "\n\n")
	b.WriteString(d.row("status", d.statusFor(status).Render(status.String())))
	b.WriteString(d.row("raised", d.valueStyle.Render(
		fmt.Sprintf("%.4f / %.0f", unitsFloat(current), unitsFloat(hard)))))
	b.WriteString(d.row("progress", d.progressBar(current, hard, 24)))
	b.WriteString(d.row("purchasers", d.valueStyle.Render(
		fmt.Sprintf("%d", len(d.ctrl.AllPurchasers())))))
	b.WriteString(d.row("supply", d.valueStyle.Render(
		fmt.Sprintf("%.0f %s", unitsFloat(d.ledger.TotalSupply()), d.ledger.Symbol()))))
	return b.String()
}

func (d *Dashboard) marketPanel() string {
	var b strings.Builder
	b.WriteString(d.valueStyle.Render("Market") + "\n\n")
	if d.lastPrice == nil {
		b.WriteString(d.mutedStyle.Render("waiting for liquidity..."))
		return b.String()
	}

	pctStyle := d.statusStyle
	if d.lastPrice.Percent < 0 {
		pctStyle = d.errorStyle
	}
	b.WriteString(d.row("price", d.valueStyle.Render(
		fmt.Sprintf("%.8f", d.lastPrice.PriceNative))))
	b.WriteString(d.row("change", pctStyle.Render(
		fmt.Sprintf("%+.2f%% %s", d.lastPrice.Percent, d.prices.Trend()))))
	b.WriteString(d.row("reserves", d.valueStyle.Render(
		fmt.Sprintf("%.0f / %.4f", d.lastPrice.ReserveToken, d.lastPrice.ReserveNative))))
	b.WriteString("\n" + d.prices.View() + "\n")
	b.WriteString(d.mutedStyle.Render("sampled " + d.lastPrice.At.Format("15:04:05")))
	return b.String()
}

func (d *Dashboard) logPanel() string {
	var b strings.Builder
	b.WriteString(d.valueStyle.Render("Recent activity") + "\n\n")

	entries := d.buffer.GetRecentLogs(logPaneLines)
	if len(entries) == 0 {
		b.WriteString(d.mutedStyle.Render("no log entries yet"))
		return b.String()
	}
	for _, e := range entries {
		style := d.mutedStyle
		switch e.Level {
		case "error", "fatal":
			style = d.errorStyle
		case "warn":
			style = d.warnStyle
		}
		line := fmt.Sprintf("%s %s", e.Timestamp.Format("15:04:05"), e.Message)
		b.WriteString(style.Render(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dashboard) row(label, value string) string {
	return fmt.Sprintf("%s %s\n", d.labelStyle.Width(11).Render(label), value)
}

func (d *Dashboard) statusFor(status crowdsale.Status) lipgloss.Style {
	switch status {
	case crowdsale.StatusFinalized:
		return d.statusStyle
	case crowdsale.StatusCanceled:
		return d.errorStyle
	default:
		return d.warnStyle
	}
}

func (d *Dashboard) progressBar(current, total *uint256.Int, width int) string {
	filled := 0
	if !total.IsZero() {
		ratio := unitsFloat(current) / unitsFloat(total)
		if ratio > 1 {
			ratio = 1
		}
		filled = int(ratio * float64(width))
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return d.statusStyle.Render(bar)
}

func unitsFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / 1e18
}
