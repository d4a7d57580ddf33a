package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/quocson95/ideaftp/pkg/deploy"
)

// IsInteractive reports whether r is a terminal
func IsInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type passwordModel struct {
	input       textinput.Model
	title       string
	description string
	submitted   bool
	cancelled   bool
}

func newPasswordModel(title, description string) *passwordModel {
	input := textinput.New()
	input.Placeholder = "Enter password"
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.CharLimit = 256
	input.Width = 50
	input.Prompt = "> "
	input.Focus()

	return &passwordModel{input: input, title: title, description: description}
}

func (m *passwordModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *passwordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			if m.input.Value() == "" {
				m.setError(errors.New("password cannot be empty"))
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *passwordModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	if m.description != "" {
		b.WriteString(m.description)
		b.WriteString("\n\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: submit • esc: cancel"))
	return boxStyle.Render(b.String())
}

func (m *passwordModel) setError(err error) {
	m.description = errorStyle.Render(fmt.Sprintf("✗ %v", err))
}

// ReadPassword prompts for a password. On a terminal it shows a masked
// input; otherwise it reads one line from in. Cancelling returns
// deploy.ErrCanceled.
func ReadPassword(ctx context.Context, in io.Reader, out io.Writer, title, description string) (string, error) {
	if !IsInteractive(in) {
		return readLine(in)
	}

	final, err := tea.NewProgram(newPasswordModel(title, description),
		tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	m := final.(*passwordModel)
	if !m.submitted {
		return "", deploy.ErrCanceled
	}
	return m.input.Value(), nil
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no password on stdin")
		}
		return "", err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password cannot be empty")
	}
	return pw, nil
}
