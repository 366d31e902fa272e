// Package tui is the terminal front end of a training session.
//
// The model only renders engine state and forwards keystrokes to engine
// operations; the engine stays the single owner of the boxes.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/example/boxtrainer/internal/leitner"
	"github.com/example/boxtrainer/pkg/models"
)

// Engine is the part of leitner.Engine the model drives.
type Engine interface {
	View() leitner.View
	Boxes() models.BoxesState
	Config() leitner.Config
	SelectBox(name models.BoxName) error
	Redraw()
	SetAnswer(answer string)
	Confirm()
	UpdateCorrectionField(field leitner.CorrectionField, value string) (bool, error)
	Subscribe(fn func(leitner.Update)) func()
}

// refreshMsg tells the model that engine state changed outside Update,
// e.g. when a settle timer fired.
type refreshMsg struct{}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	wrongStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	flashStyle  = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("9")).Foreground(lipgloss.Color("15"))
	promptStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0)
	expectStyle = lipgloss.NewStyle().Italic(true)
	boxKeys     = []string{"f1", "f2", "f3", "f4", "f5", "f6"}
)

// Model is the bubbletea model of a training session.
type Model struct {
	engine Engine
	title  string

	answer textinput.Model
	front  textinput.Model
	back   textinput.Model
	// focusBack is true while the back correction field has focus.
	focusBack bool

	view  leitner.View
	boxes models.BoxesState
	err   error

	quitting bool
}

// NewModel creates a model for engine.
func NewModel(engine Engine, title string) Model {
	answer := textinput.New()
	answer.Placeholder = "answer"
	answer.Focus()
	front := textinput.New()
	front.Placeholder = "front"
	back := textinput.New()
	back.Placeholder = "back"

	m := Model{engine: engine, title: title, answer: answer, front: front, back: back}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) refresh() {
	prev := m.view
	m.view = m.engine.View()
	m.boxes = m.engine.Boxes()

	// A new card or a closed correction clears the inputs.
	if selectedID(prev) != selectedID(m.view) || (prev.Correction != nil) != (m.view.Correction != nil) {
		m.answer.Reset()
		m.front.Reset()
		m.back.Reset()
		m.focusBack = false
	}
	if m.view.Phase == leitner.PhaseCorrection {
		m.answer.Blur()
		if m.focusBack {
			m.front.Blur()
			m.back.Focus()
		} else {
			m.back.Blur()
			m.front.Focus()
		}
	} else {
		m.front.Blur()
		m.back.Blur()
		m.answer.Focus()
	}
}

func selectedID(v leitner.View) int64 {
	if v.Cursor.SelectedItem == nil {
		return 0
	}
	return v.Cursor.SelectedItem.ID
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "ctrl+r":
		m.engine.Redraw()
		m.refresh()
		return m, nil
	}
	for i, k := range boxKeys {
		if key == k {
			m.err = m.engine.SelectBox(models.BoxOrder[i])
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.view.Phase {
	case leitner.PhaseAwaitingAnswer:
		if key == "enter" {
			m.engine.SetAnswer(m.answer.Value())
			m.engine.Confirm()
			m.refresh()
			return m, nil
		}
		m.answer, cmd = m.answer.Update(msg)
		m.engine.SetAnswer(m.answer.Value())
	case leitner.PhaseCorrection:
		if key == "tab" || key == "shift+tab" || key == "enter" {
			m.focusBack = !m.focusBack
			m.refresh()
			return m, nil
		}
		field := leitner.FieldFront
		if m.focusBack {
			m.back, cmd = m.back.Update(msg)
			field = leitner.FieldBack
			_, m.err = m.engine.UpdateCorrectionField(field, m.back.Value())
		} else {
			m.front, cmd = m.front.Update(msg)
			_, m.err = m.engine.UpdateCorrectionField(field, m.front.Value())
		}
	default:
		return m, nil
	}
	m.refresh()
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.boxBar())
	b.WriteString("\n")

	v := m.view
	switch v.Phase {
	case leitner.PhaseIdle:
		if v.Cursor.ActiveBox == "" {
			b.WriteString(promptStyle.Render("Pick a box with F1-F6."))
		} else {
			b.WriteString(promptStyle.Render(fmt.Sprintf("%s is empty.", v.Cursor.ActiveBox)))
		}
	case leitner.PhaseAwaitingAnswer:
		b.WriteString(promptStyle.Render(v.Prompt()))
		b.WriteString("\n")
		b.WriteString(m.answer.View())
	case leitner.PhaseCorrectPending:
		b.WriteString(promptStyle.Render(v.Prompt()))
		b.WriteString("\n")
		b.WriteString(okStyle.Render("Correct: " + v.Answer))
	case leitner.PhaseCorrection:
		c := v.Correction
		if v.Flash {
			b.WriteString(flashStyle.Render(" wrong "))
			b.WriteString("\n")
		}
		if c.Mode == leitner.CorrectionIntro {
			b.WriteString(promptStyle.Render("New word, type it out:"))
		} else {
			b.WriteString(wrongStyle.Render("Retype the card to continue:"))
		}
		b.WriteString("\n")
		b.WriteString(expectStyle.Render(c.ExpectedFront))
		b.WriteString("\n")
		b.WriteString(m.front.View())
		b.WriteString("\n")
		b.WriteString(expectStyle.Render(c.ExpectedBack))
		b.WriteString("\n")
		b.WriteString(m.back.View())
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(wrongStyle.Render(m.err.Error()))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("enter confirm • tab switch field • ctrl+r next card • esc quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) boxBar() string {
	cfg := m.engine.Config()
	parts := make([]string, 0, len(models.BoxOrder))
	for i, name := range models.BoxOrder {
		if name == models.BoxZero && !cfg.BoxZeroEnabled {
			continue
		}
		label := fmt.Sprintf("%s %s:%d", strings.ToUpper(boxKeys[i]), name, len(m.boxes[name]))
		if name == m.view.Cursor.ActiveBox {
			parts = append(parts, activeStyle.Render("["+label+"]"))
		} else {
			parts = append(parts, mutedStyle.Render(" "+label+" "))
		}
	}
	return strings.Join(parts, " ")
}

// Run shows the model until the user quits or ctx ends.
func Run(ctx context.Context, engine Engine, title string, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(engine, title), opts...)
	// Engine callbacks may run inside Update, so Send must not block them.
	unsubscribe := engine.Subscribe(func(leitner.Update) {
		go p.Send(refreshMsg{})
	})
	defer unsubscribe()
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
