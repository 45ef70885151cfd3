// Package tui is the terminal chat surface. It renders the active
// conversation and turns typed lines into client commands.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"softspace/internal/client"
	"softspace/internal/models"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	noteStyle      = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	paywallStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Padding(0, 1)
)

const maxNotes = 4

type resultMsg struct {
	cmd client.Command
	res client.Result
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx     context.Context
	app     *client.App
	nav     client.Navigator
	notices *Notifier
	urlID   string

	input textinput.Model
	spin  spinner.Model
	view  viewport.Model

	busy    bool
	notes   []string
	paywall string
	status  string
	width   int
	height  int
}

// New builds the chat screen. urlID, when set, is opened at start.
func New(ctx context.Context, app *client.App, nav client.Navigator, notices *Notifier, urlID string) Model {
	in := textinput.New()
	in.Placeholder = "Say what's on your mind, or /help"
	in.Prompt = "you> "
	in.CharLimit = 4000
	in.Width = 60
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = assistantStyle

	return Model{
		ctx:     ctx,
		app:     app,
		nav:     nav,
		notices: notices,
		urlID:   urlID,
		input:   in,
		spin:    s,
		view:    viewport.New(80, 20),
		busy:    true,
	}
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	start := func() tea.Msg {
		return resultMsg{cmd: client.OpenConversation{ID: m.urlID}, res: m.app.Start(m.ctx, m.urlID)}
	}
	return tea.Batch(textinput.Blink, m.spin.Tick, start)
}

func (m Model) dispatch(cmd client.Command) tea.Cmd {
	app, ctx := m.app, m.ctx
	return func() tea.Msg {
		return resultMsg{cmd: cmd, res: app.Dispatch(ctx, cmd)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-len(m.input.Prompt)-2, 10)
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-6, 3)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			return m.submit()
		}

	case resultMsg:
		m.busy = false
		m.status = ""
		m.collectNotices()
		if _, ok := msg.cmd.(client.Logout); ok {
			m.paywall = ""
		}
		if msg.res.OK() {
			switch msg.cmd.(type) {
			case client.RefreshUsage:
				m.status = usageLine(m.app.Usage.Snapshot())
			case client.Login, client.Signup:
				m.paywall = ""
				m.status = "Signed in."
			}
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.busy {
			m.refresh()
		}
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.busy {
		return m, nil
	}
	if line == "/help" {
		m.input.SetValue("")
		m.status = helpText
		return m, nil
	}
	cmd, err := parseInput(line)
	if errors.Is(err, errQuit) {
		return m, tea.Quit
	}
	if err != nil {
		m.status = errorStyle.Render(err.Error())
		return m, nil
	}
	m.input.SetValue("")
	m.status = ""
	m.busy = true
	return m, tea.Batch(m.dispatch(cmd), m.spin.Tick)
}

func (m *Model) collectNotices() {
	for _, n := range m.notices.drain() {
		switch n.kind {
		case noticePaywall:
			m.paywall = n.text + " Type /login or /signup, then /upgrade."
		case noticeAuth:
			m.addNote(n.text + " Use /signup <email> <password> or /login <email> <password>.")
		case noticeURL:
			m.addNote("Open this link in your browser: " + n.text)
		default:
			m.addNote(n.text)
		}
	}
}

func (m *Model) addNote(text string) {
	m.notes = append(m.notes, text)
	if len(m.notes) > maxNotes {
		m.notes = m.notes[len(m.notes)-maxNotes:]
	}
}

func (m *Model) refresh() {
	m.view.SetContent(renderTranscript(m.app.Conversations.Messages(), m.view.Width))
	m.view.GotoBottom()
}

func renderTranscript(msgs []models.ChatMessage, width int) string {
	body := lipgloss.NewStyle()
	if width > 0 {
		body = body.Width(width)
	}
	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			b.WriteString(userStyle.Render("you") + "\n")
		case models.RoleAssistant:
			b.WriteString(assistantStyle.Render("softspace") + "\n")
		default:
			continue
		}
		b.WriteString(body.Render(msg.Content) + "\n\n")
	}
	return b.String()
}

func usageLine(s client.UsageSnapshot) string {
	switch {
	case !s.Known:
		return ""
	case s.IsSubscribed:
		return "unlimited messages"
	case s.Remaining() == 1:
		return "1 free message left"
	}
	return fmt.Sprintf("%d free messages left", s.Remaining())
}

func (m Model) header() string {
	who := "guest"
	if s := m.app.Session.Current(); s != nil {
		who = s.User.Email
	}
	parts := []string{"softspace", "mode: " + string(m.app.Conversations.Mode()), who}
	if u := usageLine(m.app.Usage.Snapshot()); u != "" {
		parts = append(parts, u)
	}
	if route := m.nav.Current().Path; route != client.RouteChat {
		parts = append(parts, route)
	}
	return headerStyle.Render(strings.Join(parts, " · "))
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header() + "\n")
	b.WriteString(m.view.View() + "\n")
	if m.paywall != "" {
		b.WriteString(paywallStyle.Render(m.paywall) + "\n")
	}
	for _, n := range m.notes {
		b.WriteString(noteStyle.Render(n) + "\n")
	}
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	if m.busy {
		b.WriteString(m.spin.View() + " " + noteStyle.Render("listening...") + "\n")
	} else {
		b.WriteString(m.input.View() + "\n")
	}
	return b.String()
}
