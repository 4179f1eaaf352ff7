package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// LoginChoice is what the login prompt collected.
type LoginChoice struct {
	Guest     bool
	Email     string
	Password  string
	Cancelled bool
}

type promptScreen int

const (
	screenChoose promptScreen = iota
	screenCredentials
)

const (
	optionGuest = iota
	optionAccount
)

var promptOptions = []string{"Play as guest", "Log in with email and password"}

// LoginPrompt asks whether to play as a guest or with an account, and for
// the account's credentials.
type LoginPrompt struct {
	screen   promptScreen
	selected int
	email    textinput.Model
	password textinput.Model
	focus    int
	err      string
	done     bool
	choice   LoginChoice
}

// NewLoginPrompt returns the prompt on its first screen.
func NewLoginPrompt() *LoginPrompt {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Width = 40

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 128
	password.Width = 40

	return &LoginPrompt{email: email, password: password}
}

// Choice returns the collected answer. It is only meaningful once Done.
func (m *LoginPrompt) Choice() LoginChoice { return m.choice }

// Done reports whether the prompt finished.
func (m *LoginPrompt) Done() bool { return m.done }

func (m *LoginPrompt) Init() tea.Cmd { return nil }

func (m *LoginPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, m.updateInputs(msg)
	}
	switch key.String() {
	case "ctrl+c":
		return m.finish(LoginChoice{Cancelled: true})
	case "esc":
		if m.screen == screenCredentials {
			m.screen = screenChoose
			m.err = ""
			m.email.Blur()
			m.password.Blur()
			return m, nil
		}
		return m.finish(LoginChoice{Cancelled: true})
	}
	if m.screen == screenChoose {
		return m.updateChoose(key)
	}
	return m.updateCredentials(key)
}

func (m *LoginPrompt) updateChoose(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		m.selected = max(m.selected-1, 0)
	case "down", "j":
		m.selected = min(m.selected+1, len(promptOptions)-1)
	case "1":
		m.selected = optionGuest
		return m.choose()
	case "2":
		m.selected = optionAccount
		return m.choose()
	case "enter":
		return m.choose()
	case "q":
		return m.finish(LoginChoice{Cancelled: true})
	}
	return m, nil
}

func (m *LoginPrompt) choose() (tea.Model, tea.Cmd) {
	if m.selected == optionGuest {
		return m.finish(LoginChoice{Guest: true})
	}
	m.screen = screenCredentials
	m.focus = 0
	m.password.Blur()
	return m, m.email.Focus()
}

func (m *LoginPrompt) updateCredentials(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "tab", "shift+tab", "up", "down":
		return m, m.toggleFocus()
	case "enter":
		if m.focus == 0 {
			return m, m.toggleFocus()
		}
		email := strings.TrimSpace(m.email.Value())
		if email == "" || m.password.Value() == "" {
			m.err = "Email and password are required."
			return m, nil
		}
		return m.finish(LoginChoice{Email: email, Password: m.password.Value()})
	}
	m.err = ""
	return m, m.updateInputs(key)
}

func (m *LoginPrompt) toggleFocus() tea.Cmd {
	if m.focus == 0 {
		m.focus = 1
		m.email.Blur()
		return m.password.Focus()
	}
	m.focus = 0
	m.password.Blur()
	return m.email.Focus()
}

func (m *LoginPrompt) updateInputs(msg tea.Msg) tea.Cmd {
	var emailCmd, passwordCmd tea.Cmd
	m.email, emailCmd = m.email.Update(msg)
	m.password, passwordCmd = m.password.Update(msg)
	return tea.Batch(emailCmd, passwordCmd)
}

func (m *LoginPrompt) finish(c LoginChoice) (tea.Model, tea.Cmd) {
	m.choice = c
	m.done = true
	return m, tea.Quit
}

func (m *LoginPrompt) View() string {
	if m.done {
		return ""
	}
	var s strings.Builder
	s.WriteString(titleStyle.Render("tachikoma login"))
	s.WriteString("\n\n")

	if m.screen == screenChoose {
		var lines []string
		for i, opt := range promptOptions {
			line := fmt.Sprintf("[%d] %s", i+1, opt)
			if i == m.selected {
				line = selectedStyle.Render("> " + line)
			} else {
				line = "  " + line
			}
			lines = append(lines, line)
		}
		s.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("↑/↓ select • enter confirm • q quit"))
		return s.String()
	}

	form := "Email\n" + m.email.View() + "\n\nPassword\n" + m.password.View()
	s.WriteString(boxStyle.Render(form))
	s.WriteString("\n")
	if m.err != "" {
		s.WriteString(RenderStatus("error", m.err))
		s.WriteString("\n")
	}
	s.WriteString(helpStyle.Render("tab switch field • enter submit • esc back"))
	return s.String()
}

// RunLoginPrompt runs the prompt on in and out until the user answers.
func RunLoginPrompt(in io.Reader, out io.Writer) (LoginChoice, error) {
	final, err := tea.NewProgram(NewLoginPrompt(), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return LoginChoice{}, fmt.Errorf("login prompt: %w", err)
	}
	m, ok := final.(*LoginPrompt)
	if !ok || !m.Done() {
		return LoginChoice{Cancelled: true}, nil
	}
	return m.Choice(), nil
}
