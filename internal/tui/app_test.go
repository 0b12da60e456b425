package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/finsense/internal/account"
	"github.com/jask/finsense/internal/api"
	"github.com/jask/finsense/internal/export"
	"github.com/jask/finsense/internal/history"
	"github.com/jask/finsense/internal/ledger"
	"github.com/jask/finsense/internal/logging"
	"github.com/jask/finsense/internal/session"
	"github.com/jask/finsense/internal/txlist"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSource struct {
	rows      []ledger.Transaction
	listErr   error
	deleteErr error
	lists     []ledger.Filter
	deletes   []ledger.ID
}

func (f *fakeSource) ListTransactions(_ context.Context, filter ledger.Filter) ([]ledger.Transaction, error) {
	f.lists = append(f.lists, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []ledger.Transaction{}
	for _, t := range f.rows {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSource) DeleteTransaction(_ context.Context, id ledger.ID) error {
	f.deletes = append(f.deletes, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := []ledger.Transaction{}
	for _, t := range f.rows {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	f.rows = kept
	return nil
}

type fakeExporter struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeExporter) ExportTransactions(context.Context, string, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeAccounts struct {
	profile session.Profile
	err     error
	logouts int
	mode    string
}

func (f *fakeAccounts) Login(_ context.Context, email, _ string) (session.Profile, error) {
	f.mode = "login"
	if f.err != nil {
		return session.Profile{}, f.err
	}
	p := f.profile
	p.Email = email
	return p, nil
}

func (f *fakeAccounts) Signup(_ context.Context, name, email, _ string) (session.Profile, error) {
	f.mode = "signup"
	if f.err != nil {
		return session.Profile{}, f.err
	}
	return session.Profile{Name: name, Email: email}, nil
}

func (f *fakeAccounts) Logout() error {
	f.logouts++
	return nil
}

type fakeHistory struct{ entries []history.Entry }

func (f *fakeHistory) Recent(context.Context, int) ([]history.Entry, error) {
	return f.entries, nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	app      *App
	source   *fakeSource
	exporter *fakeExporter
	accounts *fakeAccounts
	dir      string
}

func row(id, typ, category string, amount int64) ledger.Transaction {
	return ledger.Transaction{
		ID:       ledger.ID(id),
		Date:     ledger.NewDate(2025, time.January, 2),
		Type:     typ,
		Category: category,
		Amount:   decimal.NewFromInt(amount),
	}
}

func newHarness(t *testing.T, signedIn bool) *harness {
	t.Helper()
	h := &harness{
		source: &fakeSource{rows: []ledger.Transaction{
			row("1", "income", "Salary", 500),
			row("2", "expense", "Food", 120),
		}},
		exporter: &fakeExporter{data: []byte("date,amount\n")},
		accounts: &fakeAccounts{profile: session.Profile{Name: "Asha"}},
		dir:      filepath.Join(t.TempDir(), "exports"),
	}
	logger := logging.Discard()
	sel := export.NewSelector(h.exporter, h.dir,
		export.WithClock(func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }),
		export.WithLogger(logger))
	var profile *session.Profile
	if signedIn {
		profile = &session.Profile{Name: "Asha", Email: "asha@example.com"}
	}
	h.app = New(context.Background(), Deps{
		Transactions: txlist.New(h.source, logger),
		Export:       sel,
		Accounts:     h.accounts,
		History:      &fakeHistory{entries: []history.Entry{{From: "2025-01", To: "2025-02", CreatedAt: time.Now()}}},
		Logger:       logger,
	}, Options{Profile: profile})
	return h
}

// run executes cmd and feeds its message back into the app.
func (h *harness) run(t *testing.T, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	if cmd == nil {
		return nil
	}
	_, next := h.app.Update(cmd())
	return next
}

func (h *harness) press(t *testing.T, k string) tea.Cmd {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "ctrl+n":
		msg = tea.KeyMsg{Type: tea.KeyCtrlN}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := h.app.Update(msg)
	return cmd
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.Nil(t, h.run(t, h.app.Init()))
}

// ---------------------------------------------------------------------------
// Transactions view
// ---------------------------------------------------------------------------

func TestInitLoadsTransactions(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	assert.Len(t, h.app.tx.Transactions(), 2)
	assert.Equal(t, "2 transactions", h.app.status)

	view := h.app.View()
	assert.Contains(t, view, "All Transactions")
	assert.Contains(t, view, "Salary")
	assert.Contains(t, view, "₹500")
}

func TestSignedOutStartsAtAuth(t *testing.T) {
	h := newHarness(t, false)
	assert.Nil(t, h.app.Init())
	assert.Equal(t, viewAuth, h.app.state)
	assert.Contains(t, h.app.View(), "Sign in")
	assert.Empty(t, h.source.lists)
}

func TestFilterKeys(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)

	h.run(t, h.press(t, "3"))
	assert.Equal(t, ledger.FilterExpense, h.app.tx.Filter())
	require.Len(t, h.app.tx.Transactions(), 1)
	assert.Equal(t, "Food", h.app.tx.Transactions()[0].Category)
	assert.Equal(t, ledger.FilterExpense, h.source.lists[len(h.source.lists)-1])

	assert.Nil(t, h.press(t, "3"), "same filter issues no fetch")

	h.run(t, h.press(t, "f"))
	assert.Equal(t, ledger.FilterAll, h.app.tx.Filter())
	assert.Len(t, h.app.tx.Transactions(), 2)
}

func TestEmptyState(t *testing.T) {
	h := newHarness(t, true)
	h.source.rows = nil
	h.start(t)
	assert.Contains(t, h.app.View(), "No transactions found")
	h.press(t, "v")
	assert.Contains(t, h.app.View(), "No transactions found")
}

func TestCardView(t *testing.T) {
	h := newHarness(t, true)
	desc := "Lunch"
	h.source.rows[1].Description = &desc
	h.start(t)
	h.press(t, "v")
	require.True(t, h.app.cardView)
	view := h.app.View()
	assert.Contains(t, view, "+₹500")
	assert.Contains(t, view, "-₹120")
	assert.Contains(t, view, "Lunch")
}

func TestDeclinedDeleteMakesNoCall(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	lists := len(h.source.lists)

	assert.Nil(t, h.press(t, "d"))
	require.Equal(t, modalConfirm, h.app.modal)
	assert.Contains(t, h.app.View(), txlist.ConfirmPrompt)

	assert.Nil(t, h.press(t, "n"))
	assert.Equal(t, modalNone, h.app.modal)
	assert.Empty(t, h.source.deletes)
	assert.Len(t, h.source.lists, lists)
	assert.Len(t, h.app.tx.Transactions(), 2)
}

func TestConfirmedDeleteRefetches(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)

	h.press(t, "j")
	h.press(t, "d")
	del := h.press(t, "y")
	require.NotNil(t, del)
	refresh := h.run(t, del)
	require.NotNil(t, refresh, "delete is followed by a full refetch")
	assert.Len(t, h.app.tx.Transactions(), 2, "list is not spliced locally")

	h.run(t, refresh)
	assert.Equal(t, []ledger.ID{"2"}, h.source.deletes)
	require.Len(t, h.app.tx.Transactions(), 1)
	assert.Equal(t, "Transaction deleted · 1 transactions", h.app.status)
}

func TestFailedDeleteShowsError(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	h.source.deleteErr = errors.New("boom")

	h.press(t, "d")
	assert.Nil(t, h.run(t, h.press(t, "y")))
	assert.True(t, h.app.statusErr)
	assert.Equal(t, "Delete failed. Try again.", h.app.status)
	assert.Len(t, h.app.tx.Transactions(), 2)
}

func TestSessionExpiryReturnsToAuth(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	h.source.listErr = api.ErrSessionExpired

	h.run(t, h.press(t, "r"))
	assert.Equal(t, viewAuth, h.app.state)
	assert.Equal(t, "Session expired. Please sign in again.", h.app.auth.err)
	assert.Len(t, h.app.tx.Transactions(), 2, "list left untouched")
}

func TestLogout(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	h.press(t, "L")
	assert.Equal(t, 1, h.accounts.logouts)
	assert.Equal(t, viewAuth, h.app.state)
}

// ---------------------------------------------------------------------------
// Export dialog
// ---------------------------------------------------------------------------

func TestExportDialogFlow(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)

	h.run(t, h.press(t, "e"))
	require.Equal(t, modalExport, h.app.modal)
	assert.Equal(t, export.Range{From: "2025-01", To: "2025-12"}, h.app.export.Range())
	view := h.app.View()
	assert.Contains(t, view, "Exporting data from 2025-01 to 2025-12")
	assert.Contains(t, view, "Recent exports")

	h.press(t, "tab")
	h.press(t, "left")
	h.press(t, "left")
	assert.Equal(t, "2025-10", h.app.export.Range().To)

	cmd := h.press(t, "enter")
	require.NotNil(t, cmd)
	assert.True(t, h.app.exporting)
	assert.Nil(t, h.press(t, "esc"), "keys ignored while exporting")

	h.run(t, cmd)
	assert.Equal(t, modalNone, h.app.modal)
	assert.False(t, h.app.export.IsOpen())
	assert.Contains(t, h.app.status, "finsense_2025-01_to_2025-10.csv")
	assert.Equal(t, 1, h.exporter.calls)
}

func TestExportInvertedRangeStaysOpen(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	h.press(t, "e")

	// Move From past To.
	for range 12 {
		h.press(t, "right")
	}
	assert.Equal(t, "2026-01", h.app.export.Range().From)
	assert.Nil(t, h.press(t, "enter"))
	assert.Equal(t, "'From' date cannot be after 'To' date", h.app.exportErr)
	assert.Equal(t, modalExport, h.app.modal)
	assert.Zero(t, h.exporter.calls)
}

func TestExportNoDataStaysOpen(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	h.exporter.err = &api.APIError{StatusCode: 404}

	h.press(t, "e")
	h.run(t, h.press(t, "enter"))
	assert.Equal(t, modalExport, h.app.modal)
	assert.True(t, h.app.export.IsOpen())
	assert.Equal(t, "No data to export for selected range", h.app.exportErr)
}

func TestExportCancelDiscardsRange(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	h.press(t, "e")
	h.press(t, "left")
	h.press(t, "esc")
	assert.Equal(t, modalNone, h.app.modal)
	assert.Equal(t, export.Range{}, h.app.export.Range())

	h.press(t, "e")
	assert.Equal(t, export.Range{From: "2025-01", To: "2025-12"}, h.app.export.Range())
}

// ---------------------------------------------------------------------------
// Auth view
// ---------------------------------------------------------------------------

func TestLoginFlow(t *testing.T) {
	h := newHarness(t, false)
	h.app.auth.email.SetValue("asha@example.com")
	h.app.auth.password.SetValue("pw")
	h.app.auth.focus = 1

	cmd := h.press(t, "enter")
	require.NotNil(t, cmd)
	assert.True(t, h.app.auth.busy)

	refresh := h.run(t, cmd)
	assert.Equal(t, "login", h.accounts.mode)
	assert.Equal(t, viewTransactions, h.app.state)
	assert.Equal(t, "Asha", h.app.displayName())
	require.NotNil(t, refresh)
	h.run(t, refresh)
	assert.Len(t, h.app.tx.Transactions(), 2)
}

func TestLoginErrorShown(t *testing.T) {
	h := newHarness(t, false)
	h.accounts.err = account.ErrIncorrectPassword
	h.app.auth.email.SetValue("asha@example.com")
	h.app.auth.password.SetValue("bad")

	h.run(t, h.press(t, "enter"))
	assert.Equal(t, viewAuth, h.app.state)
	assert.Equal(t, "Incorrect password", h.app.auth.err)
	assert.Contains(t, h.app.View(), "Incorrect password")
}

func TestAuthRequiresAllFields(t *testing.T) {
	h := newHarness(t, false)
	h.app.auth.focus = 1
	h.app.auth.applyFocus()
	assert.Nil(t, h.press(t, "enter"))
	assert.Equal(t, "Please fill in all fields", h.app.auth.err)
}

func TestToggleSignupClearsError(t *testing.T) {
	h := newHarness(t, false)
	h.app.auth.err = "Login failed"
	h.press(t, "ctrl+n")
	assert.Equal(t, modeSignup, h.app.auth.mode)
	assert.Empty(t, h.app.auth.err)
	assert.Contains(t, h.app.View(), "Create your account")

	h.app.auth.name.SetValue("Ravi")
	h.app.auth.email.SetValue("ravi@example.com")
	h.app.auth.password.SetValue("pw")
	h.app.auth.focus = 2
	h.run(t, h.press(t, "enter"))
	assert.Equal(t, "signup", h.accounts.mode)
	assert.Equal(t, "Ravi", h.app.profile.Name)
}

func TestTypingGoesToFocusedInput(t *testing.T) {
	h := newHarness(t, false)
	h.press(t, "q")
	assert.Equal(t, "q", h.app.auth.email.Value(), "q types instead of quitting")
	assert.Equal(t, viewAuth, h.app.state)
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func TestViewFitsWindow(t *testing.T) {
	h := newHarness(t, true)
	h.start(t)
	h.app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	h.press(t, "d")
	lines := strings.Split(h.app.View(), "\n")
	assert.Len(t, lines, 30)
}

func TestKeyRegistryFallsBackToGlobal(t *testing.T) {
	r := NewKeyRegistry()
	assert.Equal(t, actionQuit, r.Lookup("ctrl+c", scopeExport))
	assert.Equal(t, actionLogout, r.Lookup("L", scopeTransactions))
	assert.Empty(t, r.Lookup("l", scopeTransactions))
	assert.Equal(t, actionNextMonth, r.Lookup("l", scopeExport))
	assert.Empty(t, r.Lookup("q", scopeAuth))
}
