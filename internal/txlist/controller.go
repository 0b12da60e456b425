// Package txlist keeps the locally held transaction list consistent with the
// server's result set for the active filter.
package txlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/jask/finsense/internal/api"
	"github.com/jask/finsense/internal/ledger"
	"github.com/jask/finsense/internal/logging"
)

// ConfirmPrompt is shown before a transaction is deleted.
const ConfirmPrompt = "Are you sure you want to delete this transaction?"

// ErrNoPendingDelete is returned by ConfirmDelete when nothing was asked.
var ErrNoPendingDelete = errors.New("no delete pending")

// Source is the remote collection.
type Source interface {
	ListTransactions(ctx context.Context, f ledger.Filter) ([]ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id ledger.ID) error
}

// Ticket identifies one issued fetch.
type Ticket struct {
	Seq    uint64
	Filter ledger.Filter
}

// Loaded is the result of running a Ticket.
type Loaded struct {
	Ticket       Ticket
	Transactions []ledger.Transaction
	Err          error
}

// Controller owns the transaction list and the active filter. It is not safe
// for concurrent use: mutate it from the event loop only. Load and Delete do
// not touch controller state and may run elsewhere.
type Controller struct {
	source Source
	logger *log.Logger

	transactions []ledger.Transaction
	filter       ledger.Filter

	issued  uint64
	applied uint64

	pending    ledger.ID
	hasPending bool
}

func New(source Source, logger *log.Logger) *Controller {
	return &Controller{
		source:       source,
		logger:       logging.Component(logger, "txlist"),
		transactions: []ledger.Transaction{},
		filter:       ledger.FilterAll,
	}
}

// Transactions returns the list as of the last applied fetch.
func (c *Controller) Transactions() []ledger.Transaction { return c.transactions }

// Filter returns the active filter.
func (c *Controller) Filter() ledger.Filter { return c.filter }

// Loading reports whether a fetch newer than the displayed list is in flight.
func (c *Controller) Loading() bool { return c.applied < c.issued }

// Refresh issues a fetch for the current filter. Only the most recently
// issued ticket can be applied.
func (c *Controller) Refresh() Ticket {
	c.issued++
	return Ticket{Seq: c.issued, Filter: c.filter}
}

// IsLatest reports whether t is the most recently issued ticket.
func (c *Controller) IsLatest(t Ticket) bool { return t.Seq == c.issued }

// SetFilter switches the filter and issues a refresh. Selecting the active
// filter again issues nothing.
func (c *Controller) SetFilter(f ledger.Filter) (Ticket, bool) {
	if f == c.filter {
		return Ticket{}, false
	}
	c.filter = f
	return c.Refresh(), true
}

// Load runs the fetch described by t.
func (c *Controller) Load(ctx context.Context, t Ticket) Loaded {
	txs, err := c.source.ListTransactions(ctx, t.Filter)
	if err != nil {
		err = fmt.Errorf("list transactions: %w", err)
	}
	return Loaded{Ticket: t, Transactions: txs, Err: err}
}

// Apply replaces the list with the loaded result when it belongs to the
// latest ticket and succeeded. It reports whether the list changed.
func (c *Controller) Apply(l Loaded) bool {
	if !c.IsLatest(l.Ticket) {
		c.logger.Debug("discard stale fetch", "seq", l.Ticket.Seq, "latest", c.issued)
		return false
	}
	c.applied = l.Ticket.Seq
	if l.Err != nil {
		if errors.Is(l.Err, api.ErrSessionExpired) {
			c.logger.Info("fetch aborted, session expired")
		} else {
			c.logger.Warn("fetch failed", "filter", l.Ticket.Filter, "err", l.Err)
		}
		return false
	}
	txs := l.Transactions
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	c.transactions = txs
	return true
}

// AskDelete marks id as awaiting confirmation.
func (c *Controller) AskDelete(id ledger.ID) {
	c.pending, c.hasPending = id, true
}

// PendingDelete returns the id awaiting confirmation, if any.
func (c *Controller) PendingDelete() (ledger.ID, bool) {
	return c.pending, c.hasPending
}

// DeclineDelete drops the pending delete without touching the server.
func (c *Controller) DeclineDelete() {
	c.pending, c.hasPending = "", false
}

// ConfirmDelete consumes the pending delete and returns the id to pass to
// Delete.
func (c *Controller) ConfirmDelete() (ledger.ID, error) {
	if !c.hasPending {
		return "", ErrNoPendingDelete
	}
	id := c.pending
	c.DeclineDelete()
	return id, nil
}

// Delete removes id on the server. The local list is never spliced; on
// success the caller issues Refresh, on failure the list stays as it was.
func (c *Controller) Delete(ctx context.Context, id ledger.ID) error {
	if err := c.source.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	c.logger.Info("deleted transaction", "id", id)
	return nil
}

// DeleteMessage is the copy shown when a delete fails.
func DeleteMessage(err error) string {
	var apiErr *api.APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return "Delete failed: " + apiErr.Detail
	default:
		return "Delete failed. Try again."
	}
}
