// Package tui is the terminal front end: sign-in, the transaction list with
// its delete confirmation, and the export dialog.
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/jask/finsense/internal/account"
	"github.com/jask/finsense/internal/api"
	"github.com/jask/finsense/internal/export"
	"github.com/jask/finsense/internal/history"
	"github.com/jask/finsense/internal/ledger"
	"github.com/jask/finsense/internal/logging"
	"github.com/jask/finsense/internal/session"
	"github.com/jask/finsense/internal/txlist"
)

const appName = "FinSense"

const historyLimit = 5

// Accounts signs users in and out.
type Accounts interface {
	Login(ctx context.Context, email, password string) (session.Profile, error)
	Signup(ctx context.Context, name, email, password string) (session.Profile, error)
	Logout() error
}

// History lists recent exports. Optional.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Deps are the collaborators the app drives.
type Deps struct {
	Transactions *txlist.Controller
	Export       *export.Selector
	Accounts     Accounts
	History      History
	Logger       *log.Logger
}

// Options are display settings.
type Options struct {
	Currency string
	CardView bool
	// Profile is the signed-in user, or nil to start at the sign-in form.
	Profile *session.Profile
}

type appState string

const (
	viewAuth         appState = "auth"
	viewTransactions appState = "transactions"
)

type modalState string

const (
	modalNone    modalState = ""
	modalConfirm modalState = "confirmDelete"
	modalExport  modalState = "export"
)

type exportField int

const (
	fieldFrom exportField = iota
	fieldTo
)

// App is the bubbletea model.
type App struct {
	ctx      context.Context
	tx       *txlist.Controller
	export   *export.Selector
	accounts Accounts
	history  History
	logger   *log.Logger
	keys     *KeyRegistry

	state   appState
	modal   modalState
	profile session.Profile
	auth    authForm

	currency  string
	cardView  bool
	cursor    int
	topIndex  int
	width     int
	height    int
	status    string
	statusErr bool
	notice    string

	deleting      bool
	exportFocus   exportField
	exportErr     string
	exporting     bool
	recentExports []history.Entry
}

func New(ctx context.Context, deps Deps, opts Options) *App {
	currency := opts.Currency
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	a := &App{
		ctx:      ctx,
		tx:       deps.Transactions,
		export:   deps.Export,
		accounts: deps.Accounts,
		history:  deps.History,
		logger:   logging.Component(deps.Logger, "tui"),
		keys:     NewKeyRegistry(),
		state:    viewAuth,
		auth:     newAuthForm(),
		currency: currency,
		cardView: opts.CardView,
	}
	if opts.Profile != nil {
		a.profile = *opts.Profile
		a.state = viewTransactions
	}
	return a
}

func (a *App) Init() tea.Cmd {
	if a.state != viewTransactions {
		return nil
	}
	return a.refresh()
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

type loadedMsg struct{ txlist.Loaded }

type deleteDoneMsg struct {
	id  ledger.ID
	err error
}

type exportDoneMsg struct{ export.Outcome }

type historyMsg struct {
	entries []history.Entry
	err     error
}

type authDoneMsg struct {
	profile session.Profile
	err     error
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (a *App) refresh() tea.Cmd {
	return a.load(a.tx.Refresh())
}

func (a *App) load(t txlist.Ticket) tea.Cmd {
	ctx, tx := a.ctx, a.tx
	return func() tea.Msg {
		return loadedMsg{tx.Load(ctx, t)}
	}
}

func (a *App) deleteCmd(id ledger.ID) tea.Cmd {
	ctx, tx := a.ctx, a.tx
	return func() tea.Msg {
		return deleteDoneMsg{id: id, err: tx.Delete(ctx, id)}
	}
}

func (a *App) exportCmd(r export.Range) tea.Cmd {
	ctx, sel := a.ctx, a.export
	return func() tea.Msg {
		return exportDoneMsg{sel.Run(ctx, r)}
	}
}

func (a *App) historyCmd() tea.Cmd {
	if a.history == nil {
		return nil
	}
	ctx, h := a.ctx, a.history
	return func() tea.Msg {
		entries, err := h.Recent(ctx, historyLimit)
		return historyMsg{entries: entries, err: err}
	}
}

func (a *App) authCmd(mode authMode, name, email, password string) tea.Cmd {
	ctx, acc := a.ctx, a.accounts
	return func() tea.Msg {
		var p session.Profile
		var err error
		if mode == modeSignup {
			p, err = acc.Signup(ctx, name, email, password)
		} else {
			p, err = acc.Login(ctx, email, password)
		}
		return authDoneMsg{profile: p, err: err}
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.ensureCursorInWindow()
		return a, nil
	case loadedMsg:
		return a.handleLoaded(m)
	case deleteDoneMsg:
		return a.handleDeleteDone(m)
	case exportDoneMsg:
		return a.handleExportDone(m)
	case historyMsg:
		if m.err != nil {
			a.logger.Warn("load export history", "err", m.err)
			return a, nil
		}
		a.recentExports = m.entries
		return a, nil
	case authDoneMsg:
		return a.handleAuthDone(m)
	case tea.KeyMsg:
		if a.state == viewAuth {
			return a.updateAuth(m)
		}
		switch a.modal {
		case modalConfirm:
			return a.updateConfirm(m)
		case modalExport:
			return a.updateExport(m)
		}
		return a.updateTransactions(m)
	}
	return a, nil
}

func (a *App) handleLoaded(m loadedMsg) (tea.Model, tea.Cmd) {
	latest := a.tx.IsLatest(m.Ticket)
	applied := a.tx.Apply(m.Loaded)
	if errors.Is(m.Err, api.ErrSessionExpired) {
		return a.sessionExpired()
	}
	if applied {
		a.ensureCursorInWindow()
		count := fmt.Sprintf("%d transactions", len(a.tx.Transactions()))
		if a.notice != "" {
			count = a.notice + " · " + count
			a.notice = ""
		}
		a.setStatus(count)
		return a, nil
	}
	if latest && m.Err != nil {
		a.setError("Could not load transactions")
	}
	return a, nil
}

func (a *App) handleDeleteDone(m deleteDoneMsg) (tea.Model, tea.Cmd) {
	a.deleting = false
	if errors.Is(m.err, api.ErrSessionExpired) {
		return a.sessionExpired()
	}
	if m.err != nil {
		a.setError(txlist.DeleteMessage(m.err))
		return a, nil
	}
	a.notice = "Transaction deleted"
	return a, a.refresh()
}

func (a *App) handleExportDone(m exportDoneMsg) (tea.Model, tea.Cmd) {
	a.exporting = false
	if errors.Is(m.Err, api.ErrSessionExpired) {
		return a.sessionExpired()
	}
	a.export.Finish(m.Outcome)
	if m.Err != nil {
		a.exportErr = export.Message(m.Err)
		return a, nil
	}
	a.modal = modalNone
	a.exportErr = ""
	a.setStatus("Saved " + m.Path)
	return a, nil
}

func (a *App) handleAuthDone(m authDoneMsg) (tea.Model, tea.Cmd) {
	a.auth.busy = false
	if m.err != nil {
		a.auth.err = account.Message(m.err)
		return a, nil
	}
	a.profile = m.profile
	a.auth.reset()
	a.state = viewTransactions
	a.setStatus("Welcome, " + a.displayName())
	return a, a.refresh()
}

// sessionExpired returns to the sign-in form. The transport has already
// cleared the stored session.
func (a *App) sessionExpired() (tea.Model, tea.Cmd) {
	a.signOut()
	a.auth.err = "Session expired. Please sign in again."
	return a, nil
}

func (a *App) signOut() {
	a.state = viewAuth
	a.modal = modalNone
	a.profile = session.Profile{}
	a.tx.DeclineDelete()
	a.export.Cancel()
	a.exportErr = ""
	a.exporting = false
	a.deleting = false
	a.status, a.statusErr, a.notice = "", false, ""
	a.auth.reset()
}

func (a *App) updateTransactions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := a.tx.Transactions()
	switch a.keys.Lookup(msg.String(), scopeTransactions) {
	case actionQuit:
		return a, tea.Quit
	case actionUp:
		if a.cursor > 0 {
			a.cursor--
		}
		a.ensureCursorInWindow()
	case actionDown:
		if a.cursor < len(rows)-1 {
			a.cursor++
		}
		a.ensureCursorInWindow()
	case actionCycleFilter:
		return a, a.setFilter(a.tx.Filter().Next())
	case actionFilterAll:
		return a, a.setFilter(ledger.FilterAll)
	case actionFilterIncome:
		return a, a.setFilter(ledger.FilterIncome)
	case actionFilterExpense:
		return a, a.setFilter(ledger.FilterExpense)
	case actionRefresh:
		a.setStatus("Refreshing...")
		return a, a.refresh()
	case actionToggleView:
		a.cardView = !a.cardView
		a.ensureCursorInWindow()
	case actionDelete:
		if a.deleting || len(rows) == 0 || a.cursor >= len(rows) {
			return a, nil
		}
		a.tx.AskDelete(rows[a.cursor].ID)
		a.modal = modalConfirm
	case actionExport:
		a.export.Open()
		a.modal = modalExport
		a.exportFocus = fieldFrom
		a.exportErr = ""
		return a, a.historyCmd()
	case actionLogout:
		if err := a.accounts.Logout(); err != nil {
			a.logger.Error("logout", "err", err)
			a.setError("Sign out failed")
			return a, nil
		}
		a.signOut()
	}
	return a, nil
}

func (a *App) setFilter(f ledger.Filter) tea.Cmd {
	t, ok := a.tx.SetFilter(f)
	if !ok {
		return nil
	}
	a.cursor, a.topIndex = 0, 0
	a.setStatus("Showing " + f.Label())
	return a.load(t)
}

func (a *App) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.keys.Lookup(msg.String(), scopeConfirm) {
	case actionQuit:
		return a, tea.Quit
	case actionConfirm:
		a.modal = modalNone
		id, err := a.tx.ConfirmDelete()
		if err != nil {
			return a, nil
		}
		a.deleting = true
		a.setStatus("Deleting...")
		return a, a.deleteCmd(id)
	case actionDecline:
		a.modal = modalNone
		a.tx.DeclineDelete()
	}
	return a, nil
}

func (a *App) updateExport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	action := a.keys.Lookup(msg.String(), scopeExport)
	if a.exporting && action != actionQuit {
		return a, nil
	}
	switch action {
	case actionQuit:
		return a, tea.Quit
	case actionCancel:
		a.export.Cancel()
		a.modal = modalNone
		a.exportErr = ""
	case actionSwitchBound:
		if a.exportFocus == fieldFrom {
			a.exportFocus = fieldTo
		} else {
			a.exportFocus = fieldFrom
		}
	case actionPrevMonth:
		a.cycleBound(-1)
	case actionNextMonth:
		a.cycleBound(1)
	case actionPrevYear:
		a.cycleBound(-12)
	case actionNextYear:
		a.cycleBound(12)
	case actionSubmit:
		r, err := a.export.Prepare()
		if err != nil {
			a.exportErr = export.Message(err)
			return a, nil
		}
		a.exportErr = ""
		a.exporting = true
		return a, a.exportCmd(r)
	}
	return a, nil
}

func (a *App) cycleBound(delta int) {
	a.exportErr = ""
	if a.exportFocus == fieldFrom {
		a.export.CycleFrom(delta)
	} else {
		a.export.CycleTo(delta)
	}
}

func (a *App) setStatus(s string) {
	a.status, a.statusErr = s, false
}

func (a *App) setError(s string) {
	a.status, a.statusErr = s, true
}

func (a *App) displayName() string {
	if a.profile.Name != "" {
		return a.profile.Name
	}
	return a.profile.Email
}

// ---------------------------------------------------------------------------
// Layout helpers
// ---------------------------------------------------------------------------

// visibleRows is how many list entries fit below the chrome.
func (a *App) visibleRows() int {
	if a.height == 0 {
		return 10
	}
	perRow := 1
	if a.cardView {
		perRow = cardHeight
	}
	// header, gap, section frame and title, table header, scroll line,
	// status and footer.
	available := (a.height - 1 - 1 - listBoxStyle.GetVerticalFrameSize() - 2 - 1 - 1 - 2) / perRow
	if available < 1 {
		available = 1
	}
	return available
}

func (a *App) ensureCursorInWindow() {
	total := len(a.tx.Transactions())
	if a.cursor >= total {
		a.cursor = total - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
	visible := a.visibleRows()
	if a.cursor < a.topIndex {
		a.topIndex = a.cursor
	} else if a.cursor >= a.topIndex+visible {
		a.topIndex = a.cursor - visible + 1
	}
	maxTop := max(total-visible, 0)
	if a.topIndex > maxTop {
		a.topIndex = maxTop
	}
	if a.topIndex < 0 {
		a.topIndex = 0
	}
}

func (a *App) sectionWidth() int {
	if a.width == 0 {
		return 80
	}
	if w := a.width - 4; w >= 20 {
		return w
	}
	return a.width
}

func (a *App) sectionContentWidth() int {
	return max(a.sectionWidth()-listBoxStyle.GetHorizontalFrameSize(), 1)
}
