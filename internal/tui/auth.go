package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type authMode int

const (
	modeLogin authMode = iota
	modeSignup
)

func (m authMode) title() string {
	if m == modeSignup {
		return "Create your account"
	}
	return "Sign in"
}

// authForm holds the login and signup inputs. Name is only shown in signup
// mode.
type authForm struct {
	mode     authMode
	name     textinput.Model
	email    textinput.Model
	password textinput.Model
	focus    int
	err      string
	busy     bool
}

func newInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.Prompt = ""
	in.CharLimit = 128
	in.Width = 36
	in.Cursor.SetMode(cursor.CursorStatic)
	return in
}

func newAuthForm() authForm {
	f := authForm{
		name:     newInput("Your name"),
		email:    newInput("you@example.com"),
		password: newInput("Password"),
	}
	f.password.EchoMode = textinput.EchoPassword
	f.password.EchoCharacter = '•'
	f.applyFocus()
	return f
}

// fields returns the visible inputs in tab order.
func (f *authForm) fields() []*textinput.Model {
	if f.mode == modeSignup {
		return []*textinput.Model{&f.name, &f.email, &f.password}
	}
	return []*textinput.Model{&f.email, &f.password}
}

func (f *authForm) applyFocus() {
	fields := f.fields()
	f.focus = (f.focus%len(fields) + len(fields)) % len(fields)
	f.name.Blur()
	f.email.Blur()
	f.password.Blur()
	fields[f.focus].Focus()
}

func (f *authForm) move(delta int) {
	f.focus += delta
	f.applyFocus()
}

// toggle switches between login and signup and clears any error.
func (f *authForm) toggle() {
	if f.mode == modeLogin {
		f.mode = modeSignup
	} else {
		f.mode = modeLogin
	}
	f.err = ""
	f.focus = 0
	f.applyFocus()
}

func (f *authForm) onLastField() bool {
	return f.focus == len(f.fields())-1
}

func (f *authForm) reset() {
	f.name.Reset()
	f.email.Reset()
	f.password.Reset()
	f.err = ""
	f.busy = false
	f.mode = modeLogin
	f.focus = 0
	f.applyFocus()
}

func (f *authForm) filled() bool {
	for _, in := range f.fields() {
		if strings.TrimSpace(in.Value()) == "" {
			return false
		}
	}
	return true
}

func (a *App) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &a.auth
	switch a.keys.Lookup(msg.String(), scopeAuth) {
	case actionQuit:
		return a, tea.Quit
	case actionToggleMode:
		if !f.busy {
			f.toggle()
		}
		return a, nil
	case actionNextField:
		f.move(1)
		return a, nil
	case actionPrevField:
		f.move(-1)
		return a, nil
	case actionSubmit:
		if f.busy {
			return a, nil
		}
		if !f.onLastField() && !f.filled() {
			f.move(1)
			return a, nil
		}
		if !f.filled() {
			f.err = "Please fill in all fields"
			return a, nil
		}
		f.err = ""
		f.busy = true
		return a, a.authCmd(f.mode, f.name.Value(), f.email.Value(), f.password.Value())
	}
	if f.busy {
		return a, nil
	}
	fields := f.fields()
	var cmd tea.Cmd
	*fields[f.focus], cmd = fields[f.focus].Update(msg)
	return a, cmd
}

func (a *App) authView() string {
	f := &a.auth
	var b strings.Builder
	b.WriteString(headerAppStyle.Render(appName))
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(f.mode.title()))
	b.WriteString("\n\n")

	labels := map[*textinput.Model]string{&f.name: "Name", &f.email: "Email", &f.password: "Password"}
	for i, in := range f.fields() {
		label := labelStyle.Render(labels[in])
		if i == f.focus {
			label = focusStyle.Render("› " + labels[in])
		} else {
			label = "  " + label
		}
		b.WriteString(label + "\n  " + in.View() + "\n\n")
	}

	switch {
	case f.busy:
		b.WriteString(infoStyle.Render("Contacting server..."))
	case f.err != "":
		b.WriteString(errorStyle.Render(f.err))
	}
	b.WriteString("\n\n")
	if f.mode == modeLogin {
		b.WriteString(mutedStyle.Render("No account? ctrl+n to sign up"))
	} else {
		b.WriteString(mutedStyle.Render("Have an account? ctrl+n to sign in"))
	}

	box := modalStyle.Render(b.String())
	footer := a.renderFooter(a.keys.HelpBindings(scopeAuth))
	if a.width == 0 || a.height == 0 {
		return box + "\n\n" + footer
	}
	body := lipgloss.Place(a.width, max(a.height-1, 1), lipgloss.Center, lipgloss.Center, box)
	return body + "\n" + footer
}
