// Package tui shows the mounted edit panel in the terminal and forwards
// edits to it.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/panel"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	selStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "81"}).Bold(true)
	faint      = lipgloss.NewStyle().Faint(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"})
)

// Console renders whichever form host has mounted.
type Console struct {
	host   *panel.Host
	save   func(context.Context) error
	logger *slog.Logger
}

// New creates a Console. save runs on ctrl+s.
func New(host *panel.Host, save func(context.Context) error, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{host: host, save: save, logger: logger}
}

// Run blocks until the user quits or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	p := tea.NewProgram(newModel(ctx, c.host, c.save), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	c.logger.Info("tui: console closed")
	return nil
}

type refreshMsg struct{}

func tickRefresh() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg { return refreshMsg{} })
}

type model struct {
	ctx  context.Context
	host *panel.Host
	save func(context.Context) error

	form    *panel.Form
	fields  []panel.Field
	cursor  int
	editing bool
	input   textinput.Model
	msg     string
	isErr   bool
}

func newModel(ctx context.Context, host *panel.Host, save func(context.Context) error) model {
	in := textinput.New()
	in.CharLimit = 500
	in.Width = 40
	return model{ctx: ctx, host: host, save: save, input: in}
}

func (m model) Init() tea.Cmd { return tickRefresh() }

func (m *model) refresh() {
	f := m.host.Current()
	if f != m.form {
		m.form = f
		m.cursor = 0
		m.editing = false
		m.input.Blur()
	}
	m.fields = nil
	if f != nil {
		m.fields = f.Fields()
	}
}

func (m *model) report(err error, ok string) {
	if err != nil {
		m.msg, m.isErr = err.Error(), true
		return
	}
	m.msg, m.isErr = ok, false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.refresh()
		return m, tickRefresh()

	case tea.KeyMsg:
		if m.editing {
			switch msg.String() {
			case "enter":
				m.editing = false
				m.input.Blur()
				m.apply(strings.TrimSpace(m.input.Value()))
				return m, nil
			case "esc":
				m.editing = false
				m.input.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.fields)-1 {
				m.cursor++
			}
		case "enter":
			if m.form == nil || len(m.fields) == 0 {
				return m, nil
			}
			fd := m.fields[m.cursor]
			if fd.Property.Kind == changes.KindSelect {
				m.apply(nextOption(fd.Property.Options, fd.Value))
				return m, nil
			}
			m.editing = true
			m.input.SetValue(fd.Value)
			m.input.CursorEnd()
			return m, m.input.Focus()
		case "esc":
			if m.form != nil {
				m.form.Close(m.ctx)
				m.refresh()
				m.report(nil, "panel closed")
			}
		case "ctrl+s":
			if m.save != nil {
				m.report(m.save(m.ctx), "saved")
			}
		}
	}
	return m, nil
}

func (m *model) apply(value string) {
	if m.form == nil || m.cursor >= len(m.fields) {
		return
	}
	name := m.fields[m.cursor].Property.Name
	m.report(m.form.Set(m.ctx, name, value), name+" = "+value)
	m.fields = m.form.Fields()
}

func nextOption(options []string, current string) string {
	if len(options) == 0 {
		return current
	}
	for i, o := range options {
		if o == current {
			return options[(i+1)%len(options)]
		}
	}
	return options[0]
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("restyle") + "\n\n")

	if m.form == nil {
		b.WriteString(faint.Render("No element selected. Turn edit mode on and click an element in the page.") + "\n")
	} else {
		for i, fd := range m.fields {
			line := fmt.Sprintf("%-16s %s", fd.Property.Name, preview(fd))
			if i == m.cursor {
				line = selStyle.Render("> " + line)
			} else {
				line = "  " + line
			}
			b.WriteString(line + "\n")
		}
		if m.editing {
			b.WriteString("\n" + m.input.View() + "\n")
		}
	}

	if m.msg != "" {
		style := faint
		if m.isErr {
			style = errStyle
		}
		b.WriteString("\n" + style.Render(m.msg) + "\n")
	}

	b.WriteString("\n")
	if m.editing {
		b.WriteString(faint.Render("enter: apply   esc: cancel"))
	} else {
		b.WriteString(faint.Render("↑/↓: move   enter: edit/cycle   esc: close panel   ctrl+s: save   q: quit"))
	}
	return b.String() + "\n"
}

func preview(fd panel.Field) string {
	v := fd.Value
	if len(v) > 40 {
		v = v[:37] + "..."
	}
	v = strings.ReplaceAll(v, "\n", " ")
	if fd.Property.Kind == changes.KindColor && strings.HasPrefix(fd.Value, "#") {
		return lipgloss.NewStyle().Background(lipgloss.Color(fd.Value)).Render("  ") + " " + v
	}
	return v
}
