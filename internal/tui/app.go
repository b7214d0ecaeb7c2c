package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/session"
	"github.com/tessro/decklink/internal/tail"
	"github.com/tessro/decklink/internal/tui/components"
	"github.com/tessro/decklink/internal/tui/styles"
)

// Panel represents which panel is focused
type Panel int

const (
	PanelDecks Panel = iota
	PanelDevices
	PanelHistory
	panelCount
)

const maxHistory = 50

type keyMap struct {
	Quit key.Binding
	Help key.Binding
	Next key.Binding
	Prev key.Binding
	Down key.Binding
	Up   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Help, k.Next}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit, k.Help}, {k.Next, k.Prev}, {k.Down, k.Up}}
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Next: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next panel")),
	Prev: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous panel")),
	Down: key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "select next")),
	Up:   key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "select previous")),
}

// App holds the TUI application state
type App struct {
	session     *session.Session
	watcher     *tail.Watcher
	formatter   *tail.Formatter
	clock       clock.Clock
	refreshRate time.Duration
}

// NewApp creates a TUI over a running session
func NewApp(s *session.Session, refreshRate time.Duration, clk clock.Clock) *App {
	if clk == nil {
		clk = clock.New()
	}
	w := tail.NewWatcher(clk, 256)
	w.Attach(s)
	return &App{
		session:     s,
		watcher:     w,
		formatter:   tail.NewFormatter(tail.WithEmoji(false)),
		clock:       clk,
		refreshRate: refreshRate,
	}
}

// Model is the main TUI model
type Model struct {
	app          *App
	width        int
	height       int
	focusedPanel Panel

	// State
	now     time.Time
	decks   []components.DeckState
	devices []core.DeviceAnnouncement
	mounted []core.SlotReference
	history []components.HistoryEntry
	last    string

	// Components
	deckView    *components.Deck
	devicesView *components.Devices
	historyView *components.History
	help        help.Model

	showHelp bool
	quitting bool
}

// NewModel creates a new TUI model
func NewModel(app *App) Model {
	return Model{
		app:          app,
		focusedPanel: PanelDecks,
		deckView:     components.NewDeck(),
		devicesView:  components.NewDevices(),
		historyView:  components.NewHistory(),
		help:         help.New(),
	}
}

// Messages
type tickMsg time.Time
type eventMsg tail.Event
type eventsClosedMsg struct{}

// Commands
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.app.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.app.watcher.Events()
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitForEvent())
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.snapshot()
		return m, m.tick()

	case eventMsg:
		e := tail.Event(msg)
		m.last = m.app.formatter.Format(e)
		if e.Type == tail.EventTrackLoaded && e.Deck.IsMain() {
			m.addToHistory(e.Deck.Player, e.Track, e.Timestamp)
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, nil
	}
	return m, nil
}

// snapshot copies the session's current view of every player.
func (m *Model) snapshot() {
	s := m.app.session
	m.now = m.app.clock.Now()
	m.devices = s.Discovery.Devices()
	m.mounted = s.Mounts.Mounted()
	m.decks = nil
	for _, d := range m.devices {
		if d.IsMixer() || d.IsCollection() {
			continue
		}
		p := d.Number
		m.decks = append(m.decks, components.DeckState{
			Player:     p,
			Track:      s.Metadata.Latest(p),
			Art:        s.Art.Latest(p),
			Grid:       s.BeatGrids.Latest(p),
			Preview:    s.WavePreviews.Latest(p),
			Structure:  s.Structures.Latest(p),
			Position:   s.Time.LatestPositionFor(p),
			PositionMs: s.Time.TimeFor(p),
		})
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	}

	if m.showHelp {
		if msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Next):
		m.focusedPanel = (m.focusedPanel + 1) % panelCount
	case key.Matches(msg, keys.Prev):
		m.focusedPanel = (m.focusedPanel + panelCount - 1) % panelCount
	case key.Matches(msg, keys.Down):
		if m.focusedPanel == PanelDevices {
			m.devicesView.SelectNext()
		}
	case key.Matches(msg, keys.Up):
		if m.focusedPanel == PanelDevices {
			m.devicesView.SelectPrev()
		}
	}
	return m, nil
}

func (m *Model) addToHistory(player int, track *core.TrackMetadata, at time.Time) {
	if track == nil {
		return
	}
	entry := components.HistoryEntry{Player: player, Track: track, LoadedAt: at}

	// Add to front, keep max entries
	m.history = append([]components.HistoryEntry{entry}, m.history...)
	if len(m.history) > maxHistory {
		m.history = m.history[:maxHistory]
	}
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	// Decks fill the top two thirds, two to a row.
	// Devices and history share the bottom row.
	topHeight := m.height * 65 / 100
	bottomHeight := m.height - topHeight - 2
	half := m.width / 2

	var rows []string
	if len(m.decks) == 0 {
		rows = append(rows, styles.Panel(m.focusedPanel == PanelDecks).
			Width(m.width-2).Height(topHeight-2).
			Render(styles.Muted.Render("Waiting for players...")))
	} else {
		rowCount := (len(m.decks) + 1) / 2
		deckHeight := topHeight/rowCount - 2
		for i := 0; i < len(m.decks); i += 2 {
			left := m.deckView.Render(m.decks[i], half-2, deckHeight, m.focusedPanel == PanelDecks)
			right := ""
			if i+1 < len(m.decks) {
				right = m.deckView.Render(m.decks[i+1], m.width-half-2, deckHeight, m.focusedPanel == PanelDecks)
			}
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, left, right))
		}
	}

	devicesView := m.devicesView.Render(m.devices, m.mounted, m.now, half-2, bottomHeight-2, m.focusedPanel == PanelDevices)
	historyView := m.historyView.Render(m.history, m.now, m.width-half-2, bottomHeight-2, m.focusedPanel == PanelHistory)

	top := lipgloss.JoinVertical(lipgloss.Left, rows...)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, devicesView, historyView)
	return lipgloss.JoinVertical(lipgloss.Left, top, bottom, m.renderStatusBar())
}

func (m Model) renderStatusBar() string {
	status := m.help.View(keys)
	if m.last != "" {
		status = styles.Dim.Render(m.last) + "  " + status
	}
	return lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1).
		Render(status)
}

func (m Model) renderHelp() string {
	m.help.ShowAll = true
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render("decklink - keyboard shortcuts"),
		"",
		m.help.View(keys),
		"",
		styles.Dim.Render("Press ? or Esc to close"),
	)
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(styles.BorderStyle.Padding(1, 2).Render(content))
}

// Run starts the TUI over s until the user quits or ctx is done.
func Run(ctx context.Context, s *session.Session, refreshRate time.Duration, theme string) error {
	styles.Apply(theme)
	app := NewApp(s, refreshRate, nil)
	defer app.watcher.Stop()

	p := tea.NewProgram(NewModel(app), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
