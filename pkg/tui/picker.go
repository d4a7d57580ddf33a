package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quocson95/ideaftp/pkg/deploy"
	"github.com/quocson95/ideaftp/pkg/pathmap"
)

type pickerModel struct {
	matches   []pathmap.Match
	cursor    int
	chosen    int // -1 until enter is pressed
	cancelled bool
}

func newPickerModel(matches []pathmap.Match) pickerModel {
	return pickerModel{matches: matches, chosen: -1}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.matches)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.chosen = m.cursor
		return m, tea.Quit
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.chosen >= 0 || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Several profiles map this file. Upload to:"))
	b.WriteString("\n\n")

	for i, match := range m.matches {
		line := fmt.Sprintf("%s  %s", match.Profile.Name, pathStyle.Render(match.RemotePath))
		if i == m.cursor {
			b.WriteString("> " + selectedItemStyle.Render(line))
		} else {
			b.WriteString("  " + itemStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("↑/k up • ↓/j down • enter select • esc/q cancel"))
	return boxStyle.Render(b.String())
}

// Picker asks the user to choose between profiles in the terminal
type Picker struct {
	In  io.Reader
	Out io.Writer
}

var _ deploy.Picker = (*Picker)(nil)

// Pick shows the candidates, longest mapping first, and returns the chosen
// one. Backing out returns deploy.ErrCanceled.
func (p *Picker) Pick(ctx context.Context, matches []pathmap.Match) (pathmap.Match, error) {
	if len(matches) == 0 {
		return pathmap.Match{}, errors.New("nothing to pick from")
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}

	final, err := tea.NewProgram(newPickerModel(matches), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return pathmap.Match{}, ctx.Err()
		}
		return pathmap.Match{}, fmt.Errorf("picker: %w", err)
	}
	return pickResult(final.(pickerModel))
}

func pickResult(m pickerModel) (pathmap.Match, error) {
	if m.cancelled || m.chosen < 0 {
		return pathmap.Match{}, deploy.ErrCanceled
	}
	return m.matches[m.chosen], nil
}
