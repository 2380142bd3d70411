// Package browse is the terminal front end of the symbol search: a text box
// feeding a session controller and a result list the user moves through
// with the arrow keys.
package browse

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// Controller is the part of session.Controller the model drives.
type Controller interface {
	Input(text string)
	Next() int
	Prev() int
	SelectCurrent() (symbol.Entry, error)
}

type Options struct {
	// MaxRows caps the visible result rows. Zero fits the window.
	MaxRows int
	// QuitOnOpen ends the program after a selection.
	QuitOnOpen bool
	// OnOpen is called with the query text and the selected entry.
	OnOpen func(text string, entry symbol.Entry)
}

const kindWidth = 10

type Model struct {
	input   textinput.Model
	ctrl    Controller
	opts    Options
	results *query.ResultSet
	shown   uint64
	cursor  int
	offset  int
	width   int
	height  int
	status  string
	opened  *symbol.Entry
}

func New(ctrl Controller, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "type a symbol name"
	ti.Prompt = "/ "
	ti.PromptStyle = promptStyle
	ti.CharLimit = 256
	ti.Focus()
	return Model{input: ti, ctrl: ctrl, opts: opts, cursor: -1, width: 80, height: 24}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Opened is the entry selected last, if any.
func (m Model) Opened() (symbol.Entry, bool) {
	if m.opened == nil {
		return symbol.Entry{}, false
	}
	return *m.opened, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case ResultsMsg:
		rs := msg.Results
		if rs == nil || (m.results != nil && rs.Generation < m.shown) {
			return m, nil
		}
		m.results = rs
		m.shown = rs.Generation
		m.cursor, m.offset = -1, 0
		if rs.Len() > 0 {
			m.cursor = 0
		}
		m.status = ""
		return m, nil

	case NavigateMsg:
		entry := msg.Entry
		m.opened = &entry
		if m.opts.OnOpen != nil {
			m.opts.OnOpen(m.input.Value(), entry)
		}
		if m.opts.QuitOnOpen {
			return m, tea.Quit
		}
		m.status = "opened " + location(entry)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "ctrl+p":
			m.moveTo(m.ctrl.Prev())
			return m, nil
		case "down", "ctrl+n", "tab":
			m.moveTo(m.ctrl.Next())
			return m, nil
		case "enter":
			if _, err := m.ctrl.SelectCurrent(); err != nil {
				m.status = "nothing to open"
			}
			return m, nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.ctrl.Input(after)
	}
	return m, cmd
}

func (m *Model) moveTo(cursor int) {
	if cursor < 0 {
		return
	}
	m.cursor = cursor
	rows := m.rows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

func (m Model) rows() int {
	rows := m.height - 4
	if m.opts.MaxRows > 0 && m.opts.MaxRows < rows {
		rows = m.opts.MaxRows
	}
	return max(rows, 1)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.results != nil {
		end := min(m.offset+m.rows(), m.results.Len())
		for i := m.offset; i < end; i++ {
			line := m.renderRow(m.results.Matches[i])
			if i == m.cursor {
				line = cursorStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) renderRow(match query.Match) string {
	e := match.Entry
	kind := kindStyle.Render(runewidth.FillRight(runewidth.Truncate(string(e.Kind), kindWidth-1, ""), kindWidth))

	nameWidth := max(m.width-kindWidth-2, 8)
	container := ""
	if len(e.Targets) > 0 && e.Targets[0].ContainerLabel != "" {
		container = e.Targets[0].ContainerLabel
		if len(e.Targets) > 1 {
			container = fmt.Sprintf("%s +%d", container, len(e.Targets)-1)
		}
	}
	name := highlight(e.DisplayName, match.Span, nameWidth)
	used := runewidth.StringWidth(runewidth.Truncate(e.DisplayName, nameWidth, "…"))
	if room := m.width - kindWidth - used - 3; container != "" && room > 4 {
		name += "  " + containerStyle.Render(runewidth.Truncate(container, room, "…"))
	}
	return kind + name
}

// highlight renders displayName cut to width cells with span emphasized.
func highlight(displayName string, span symbol.Span, width int) string {
	shown := runewidth.Truncate(displayName, width, "")
	tail := ""
	if shown != displayName {
		shown = runewidth.Truncate(displayName, width, "…")
		shown, tail = strings.TrimSuffix(shown, "…"), "…"
	}
	start, end := min(span.Start, len(shown)), min(span.End, len(shown))
	if span.Empty() || start >= end {
		return nameStyle.Render(shown + tail)
	}
	return nameStyle.Render(shown[:start]) +
		highlightStyle.Render(shown[start:end]) +
		nameStyle.Render(shown[end:]+tail)
}

func (m Model) statusLine() string {
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	if m.results == nil || m.results.Normalized == "" {
		return statusStyle.Render("type to search, arrows to move, enter to open, esc to quit")
	}
	line := statusStyle.Render(fmt.Sprintf("%d results for %q", m.results.Len(), m.results.Normalized))
	if m.results.Partial {
		line += "  " + warnStyle.Render(fmt.Sprintf("(%d shards unavailable)", len(m.results.FailedShards)))
	}
	return line
}

func location(e symbol.Entry) string {
	if len(e.Targets) == 0 {
		return e.DisplayName
	}
	return e.Targets[0].LocationURL
}
