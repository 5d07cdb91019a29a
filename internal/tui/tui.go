// Package tui is the interactive table loop: the game master types the
// party's actions, the engine narrates, and the side panel tracks where
// the campaign stands.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/chronicle/internal/chapter"
	"github.com/tatianab/chronicle/internal/engine"
	"github.com/tatianab/chronicle/internal/models"
)

type model struct {
	engine    Engine
	logger    *slog.Logger
	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	renderer  *glamour.TermRenderer

	state   models.WorldState
	chapter chapter.State

	// busy is set while a turn is out; input is ignored until it returns.
	busy    bool
	gameLog string
	width   int
	height  int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87AFAF")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func NewModel(eng Engine, logger *slog.Logger) model {
	ti := textinput.New()
	ti.Placeholder = "What does the party do?"
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = systemStyle

	return model{
		engine:    eng,
		logger:    logger,
		textInput: ti,
		spinner:   sp,
	}
}

type turnProcessedMsg struct {
	result *engine.TurnResult
	err    error
}

type commandMsg struct {
	output string
	err    error
}

type refreshMsg struct {
	state   models.WorldState
	chapter chapter.State
	err     error
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refresh())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.textInput.Value())
			if line == "" {
				return m, nil
			}
			m.textInput.Reset()

			if line == "/quit" {
				return m, tea.Quit
			}
			m.appendLog(userStyle.Width(m.logWidth()).Render("> " + line))
			m.busy = true
			if IsCommand(line) {
				return m, tea.Batch(m.spinner.Tick, m.runCommand(line))
			}
			return m, tea.Batch(m.spinner.Tick, m.processTurn(line))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(m.logWidth(), msg.Height-6)
		}
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 6
		m.renderer = newRenderer(m.logWidth() - 4)
		m.viewport.SetContent(m.gameLog)

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case turnProcessedMsg:
		m.busy = false
		if msg.result != nil {
			m.appendLog(m.renderNarration(msg.result.Display()))
			if !msg.result.StateUpdated {
				m.appendLog(systemStyle.Render("(state not updated; see the session log)"))
			}
		}
		if msg.err != nil {
			m.logger.Error("turn failed", "error", msg.err)
			m.appendLog(errorStyle.Render("Error: " + msg.err.Error()))
		}
		return m, m.refresh()

	case commandMsg:
		m.busy = false
		if msg.err != nil {
			m.appendLog(errorStyle.Render("Error: " + msg.err.Error()))
		} else {
			m.appendLog(systemStyle.Render(msg.output))
		}
		return m, m.refresh()

	case refreshMsg:
		if msg.err != nil {
			m.logger.Warn("refreshing side panel", "error", msg.err)
			return m, nil
		}
		m.state = msg.state
		m.chapter = msg.chapter
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m model) View() string {
	logView := m.viewport.View()
	if m.viewport.Width == 0 {
		logView = m.gameLog
	}
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, logView, m.renderState())

	input := m.textInput.View()
	if m.busy {
		input = m.spinner.View() + " The game master is thinking..."
	}

	help := helpStyle.Render("/snapshot [label], /chapter start|status|compile|end, /quit, or type what the party does.")
	return "\n" + lipgloss.JoinVertical(lipgloss.Left, mainView, "\n"+input, "\n"+help) + "\n"
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.75)
}

func (m *model) appendLog(s string) {
	m.gameLog += s + "\n\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m model) renderNarration(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m model) renderState() string {
	s := m.state

	when := s.When()
	if when == "" {
		when = "unknown"
	}
	content := titleStyle.Render("TIME") + "\n" + when + "\n\n"

	content += titleStyle.Render("LOCATION") + "\n" + describeLocation(s) + "\n\n"

	content += titleStyle.Render("QUESTS") + "\n"
	open := 0
	for _, q := range s.Quests {
		if strings.EqualFold(q.Status, "done") || strings.EqualFold(q.Status, "completed") || strings.EqualFold(q.Status, "failed") {
			continue
		}
		open++
		title := q.Title
		if title == "" {
			title = q.ID
		}
		content += "- " + title
		if q.Status != "" {
			content += " (" + q.Status + ")"
		}
		content += "\n"
	}
	if open == 0 {
		content += "(none)\n"
	}

	content += "\n" + titleStyle.Render("CHAPTER") + "\n" + DescribeChapter(m.chapter) + "\n"

	stateWidth := int(float64(m.width) * 0.23)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(content)
}

func describeLocation(s models.WorldState) string {
	loc := s.Party.Location
	if loc.RegionID == nil || *loc.RegionID == "" {
		return "unknown"
	}
	region := *loc.RegionID
	if r, ok := s.Discovered.Regions[region]; ok && r.PartyName != "" {
		region = r.PartyName
	}
	if loc.SiteID == nil || *loc.SiteID == "" {
		return region
	}
	site := *loc.SiteID
	if st, ok := s.Discovered.Sites[site]; ok && st.PartyName != "" {
		site = st.PartyName
	}
	return fmt.Sprintf("%s, %s", site, region)
}

func newRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m model) processTurn(input string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.engine.ProcessTurn(context.Background(), input)
		return turnProcessedMsg{result: res, err: err}
	}
}

func (m model) runCommand(line string) tea.Cmd {
	return func() tea.Msg {
		out, err := Execute(m.engine, line)
		if errors.Is(err, ErrUnknownCommand) {
			err = fmt.Errorf("%w (try /help)", err)
		}
		return commandMsg{output: out, err: err}
	}
}

func (m model) refresh() tea.Cmd {
	return func() tea.Msg {
		state, err := m.engine.State()
		if err != nil {
			return refreshMsg{err: err}
		}
		ch, err := m.engine.ChapterStatus()
		return refreshMsg{state: state, chapter: ch, err: err}
	}
}

func Run(eng Engine, logger *slog.Logger) error {
	p := tea.NewProgram(NewModel(eng, logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
