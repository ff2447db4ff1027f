// Package tui implements the interactive conversation screen.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Deirdris/react-chat/internal/chat"
)

// Config configures the conversation screen.
type Config struct {
	Store          chat.Store
	ConversationID string
	ViewerID       string
	PeerName       string

	InitialPageSize int
	OlderPageSize   int
}

const markerRefreshInterval = 2 * time.Second

type refreshMsg struct{}

type markerTickMsg struct{}

type scrollToLatestMsg struct{}

type sendResultMsg struct {
	text string
	err  error
}

type loadOlderResultMsg struct {
	err error
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	separatorStyle = lipgloss.NewStyle().Faint(true).Align(lipgloss.Center)
	timeStyle      = lipgloss.NewStyle().Faint(true)
	outgoingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	incomingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	readStyle      = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	inputStyle     = lipgloss.NewStyle().Padding(0, 1)
	statusStyle    = lipgloss.NewStyle().Faint(true).Padding(0, 1)
)

// Model is the bubbletea model for one open conversation.
type Model struct {
	view     *chat.View
	peerName string

	items  []chat.RenderItem
	input  string
	scroll int
	errMsg string

	width  int
	height int

	loadingOlder bool
}

// Run opens the conversation screen and blocks until the user quits.
func Run(cfg Config) error {
	// Live batches can fire before NewProgram returns; the pointer is
	// published atomically and Init re-pulls items to cover the gap.
	var program atomic.Pointer[tea.Program]

	view, err := chat.NewView(chat.ViewConfig{
		Store:           cfg.Store,
		ConversationID:  cfg.ConversationID,
		ViewerID:        cfg.ViewerID,
		InitialPageSize: cfg.InitialPageSize,
		OlderPageSize:   cfg.OlderPageSize,
		OnUpdate: func() {
			if p := program.Load(); p != nil {
				p.Send(refreshMsg{})
			}
		},
		OnScrollToLatest: func() {
			if p := program.Load(); p != nil {
				p.Send(scrollToLatestMsg{})
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = view.InitialLoad(ctx)
	cancel()
	if err != nil {
		return err
	}
	if err := view.SubscribeLive(); err != nil {
		return err
	}
	defer view.Close()

	model := &Model{
		view:     view,
		peerName: cfg.PeerName,
		items:    view.Items(),
	}
	p := tea.NewProgram(model, tea.WithAltScreen())
	program.Store(p)
	_, err = p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(func() tea.Msg { return refreshMsg{} }, markerTick())
}

func markerTick() tea.Cmd {
	return tea.Tick(markerRefreshInterval, func(time.Time) tea.Msg {
		return markerTickMsg{}
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		m.items = m.view.Items()
		return m, nil

	case scrollToLatestMsg:
		m.scroll = 0
		return m, nil

	case markerTickMsg:
		// Peer receipts arrive out of band; OnUpdate repaints on change.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = m.view.ReloadMarkers(ctx)
		}()
		return m, markerTick()

	case sendResultMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			// Put the text back for retry unless the user started typing
			// a new message while the send was in flight.
			if m.input == "" {
				m.input = msg.text
			}
		}
		return m, nil

	case loadOlderResultMsg:
		m.loadingOlder = false
		if msg.err != nil && !errors.Is(msg.err, chat.ErrLoadInFlight) {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		text := m.input
		m.input = ""
		m.errMsg = ""
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sendResultMsg{text: text, err: m.view.Send(ctx, text)}
		}

	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
		return m, nil

	case "up":
		m.scroll++
		return m, nil

	case "down":
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil

	case "pgup":
		if m.loadingOlder || !m.view.HasMoreHistory() {
			return m, nil
		}
		m.loadingOlder = true
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return loadOlderResultMsg{err: m.view.LoadOlder(ctx)}
		}

	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		} else if msg.Type == tea.KeySpace {
			m.input += " "
		}
		return m, nil
	}
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	header := headerStyle.Render(m.peerName)
	input := inputStyle.Render("> " + m.input + "█")

	status := statusStyle.Render("enter send · pgup history · esc quit")
	if m.loadingOlder {
		status = statusStyle.Render("loading history...")
	}
	if m.errMsg != "" {
		status = errorStyle.Render(truncateLine(m.errMsg, m.width))
	}

	chromeHeight := lipgloss.Height(header) + lipgloss.Height(input) + lipgloss.Height(status)
	bodyHeight := m.height - chromeHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	body := m.renderItems(bodyHeight)
	return strings.Join([]string{header, body, input, status}, "\n")
}

// renderItems lays the item list out bottom-up within height lines, honoring
// the scroll offset (0 keeps the newest message visible).
func (m *Model) renderItems(height int) string {
	var lines []string
	for _, item := range m.items {
		lines = append(lines, m.renderItem(item)...)
	}

	end := len(lines) - m.scroll
	if end > len(lines) {
		end = len(lines)
	}
	if end < 0 {
		end = 0
	}
	start := end - height
	if start < 0 {
		start = 0
	}
	visible := lines[start:end]

	// Pad above so short conversations sit at the bottom.
	padding := height - len(visible)
	var b strings.Builder
	for i := 0; i < padding; i++ {
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(visible, "\n"))
	return b.String()
}

func (m *Model) renderItem(item chat.RenderItem) []string {
	switch item.Kind {
	case chat.ItemDaySeparator:
		label := "sending"
		if item.HasDate {
			label = item.Date.Format("Monday, January 2")
		}
		return []string{separatorStyle.Width(m.width).Render("── " + label + " ──")}

	case chat.ItemMessage:
		var lines []string
		if item.ShowTimestamp {
			if t, ok := item.Message.CreatedAt.Time(); ok {
				stamp := timeStyle.Render(t.Local().Format("3:04 PM"))
				if item.Outgoing {
					stamp = lipgloss.PlaceHorizontal(m.width, lipgloss.Right, stamp)
				}
				lines = append(lines, stamp)
			}
		}

		style := incomingStyle
		text := item.Message.Text
		if item.Outgoing {
			style = outgoingStyle
			text = lipgloss.PlaceHorizontal(m.width, lipgloss.Right, style.Render(text))
		} else {
			text = style.Render(text)
		}
		lines = append(lines, text)

		if item.ShowRead {
			lines = append(lines, lipgloss.PlaceHorizontal(m.width, lipgloss.Right, readStyle.Render("read")))
		}
		return lines
	}
	return nil
}

func truncateLine(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return fmt.Sprintf("%s…", s[:width-1])
}
