package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type Action string

type Binding struct {
	Action Action
	Keys   []string
	Help   string
	Scope  string
}

// KeyRegistry maps key names to actions per scope. Lookups fall back to the
// global scope.
type KeyRegistry struct {
	bindingsByScope map[string][]*Binding
	indexByScope    map[string]map[string]*Binding
}

const (
	scopeGlobal       = "global"
	scopeAuth         = "auth"
	scopeTransactions = "transactions"
	scopeConfirm      = "confirm_delete"
	scopeExport       = "export"
)

const (
	actionQuit          Action = "quit"
	actionUp            Action = "up"
	actionDown          Action = "down"
	actionNextField     Action = "next_field"
	actionPrevField     Action = "prev_field"
	actionSubmit        Action = "submit"
	actionToggleMode    Action = "toggle_mode"
	actionCycleFilter   Action = "cycle_filter"
	actionFilterAll     Action = "filter_all"
	actionFilterIncome  Action = "filter_income"
	actionFilterExpense Action = "filter_expense"
	actionRefresh       Action = "refresh"
	actionDelete        Action = "delete"
	actionExport        Action = "export"
	actionToggleView    Action = "toggle_view"
	actionLogout        Action = "logout"
	actionConfirm       Action = "confirm"
	actionDecline       Action = "decline"
	actionSwitchBound   Action = "switch_bound"
	actionPrevMonth     Action = "prev_month"
	actionNextMonth     Action = "next_month"
	actionPrevYear      Action = "prev_year"
	actionNextYear      Action = "next_year"
	actionCancel        Action = "cancel"
)

func NewKeyRegistry() *KeyRegistry {
	r := &KeyRegistry{
		bindingsByScope: make(map[string][]*Binding),
		indexByScope:    make(map[string]map[string]*Binding),
	}
	reg := func(scope string, action Action, keys []string, help string) {
		r.Register(Binding{Action: action, Keys: keys, Help: help, Scope: scope})
	}

	reg(scopeGlobal, actionQuit, []string{"ctrl+c"}, "quit")

	// Auth form: printable keys belong to the inputs.
	reg(scopeAuth, actionSubmit, []string{"enter"}, "submit")
	reg(scopeAuth, actionNextField, []string{"tab", "down"}, "next field")
	reg(scopeAuth, actionPrevField, []string{"shift+tab", "up"}, "prev field")
	reg(scopeAuth, actionToggleMode, []string{"ctrl+n"}, "login/signup")
	reg(scopeAuth, actionQuit, []string{"esc"}, "quit")

	reg(scopeTransactions, actionUp, []string{"k", "up"}, "up")
	reg(scopeTransactions, actionDown, []string{"j", "down"}, "down")
	reg(scopeTransactions, actionCycleFilter, []string{"f"}, "filter")
	reg(scopeTransactions, actionFilterAll, []string{"1"}, "all")
	reg(scopeTransactions, actionFilterIncome, []string{"2"}, "income")
	reg(scopeTransactions, actionFilterExpense, []string{"3"}, "expense")
	reg(scopeTransactions, actionDelete, []string{"d", "delete"}, "delete")
	reg(scopeTransactions, actionExport, []string{"e"}, "export")
	reg(scopeTransactions, actionToggleView, []string{"v"}, "cards/table")
	reg(scopeTransactions, actionRefresh, []string{"r"}, "refresh")
	reg(scopeTransactions, actionLogout, []string{"L"}, "sign out")
	reg(scopeTransactions, actionQuit, []string{"q"}, "quit")

	reg(scopeConfirm, actionConfirm, []string{"y", "enter"}, "delete")
	reg(scopeConfirm, actionDecline, []string{"n", "esc"}, "keep")

	reg(scopeExport, actionSwitchBound, []string{"tab", "shift+tab"}, "from/to")
	reg(scopeExport, actionPrevMonth, []string{"left", "h"}, "month -")
	reg(scopeExport, actionNextMonth, []string{"right", "l"}, "month +")
	reg(scopeExport, actionPrevYear, []string{"up", "k"}, "year -")
	reg(scopeExport, actionNextYear, []string{"down", "j"}, "year +")
	reg(scopeExport, actionSubmit, []string{"enter"}, "export")
	reg(scopeExport, actionCancel, []string{"esc"}, "cancel")

	return r
}

// Register adds b to its scope. Keys already bound in that scope are left
// with their first binding.
func (r *KeyRegistry) Register(b Binding) {
	if r == nil {
		return
	}
	scope := strings.TrimSpace(b.Scope)
	if scope == "" {
		return
	}
	keys := normalizeKeyList(b.Keys)
	if len(keys) == 0 || r.scopeHasAnyKey(scope, keys) {
		return
	}
	if _, ok := r.indexByScope[scope]; !ok {
		r.indexByScope[scope] = make(map[string]*Binding)
	}
	copyBinding := b
	copyBinding.Keys = keys
	copyBinding.Scope = scope
	r.bindingsByScope[scope] = append(r.bindingsByScope[scope], &copyBinding)
	for _, k := range keys {
		r.indexByScope[scope][k] = &copyBinding
	}
}

func (r *KeyRegistry) BindingsForScope(scope string) []Binding {
	if r == nil {
		return nil
	}
	items := r.bindingsByScope[scope]
	out := make([]Binding, 0, len(items))
	for _, b := range items {
		out = append(out, *b)
	}
	return out
}

// Lookup returns the action bound to keyName in scope, or in the global scope.
func (r *KeyRegistry) Lookup(keyName, scope string) Action {
	if r == nil || keyName == "" {
		return ""
	}
	keyName = normalizeKeyName(keyName)
	if b := r.indexByScope[scope][keyName]; b != nil {
		return b.Action
	}
	if b := r.indexByScope[scopeGlobal][keyName]; b != nil {
		return b.Action
	}
	return ""
}

// HelpBindings converts a scope's bindings for the footer.
func (r *KeyRegistry) HelpBindings(scope string) []key.Binding {
	items := r.BindingsForScope(scope)
	out := make([]key.Binding, 0, len(items))
	for _, b := range items {
		out = append(out, key.NewBinding(key.WithKeys(b.Keys...), key.WithHelp(b.Keys[0], b.Help)))
	}
	return out
}

func (r *KeyRegistry) scopeHasAnyKey(scope string, keys []string) bool {
	lookup := r.indexByScope[scope]
	for _, k := range keys {
		if _, exists := lookup[k]; exists {
			return true
		}
	}
	return false
}

func normalizeKeyList(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool)
	for _, k := range keys {
		n := normalizeKeyName(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func normalizeKeyName(k string) string {
	if k == " " {
		return "space"
	}
	trimmed := strings.TrimSpace(k)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) == 1 {
		// A single uppercase rune stays distinct from its lowercase twin.
		if ch := trimmed[0]; ch >= 'A' && ch <= 'Z' {
			return trimmed
		}
	}
	s := strings.ToLower(trimmed)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "control+", "ctrl+")
	s = strings.ReplaceAll(s, "return", "enter")
	return s
}
