// Package export derives a validated month range from the user's selection and
// downloads the matching CSV.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jask/finsense/internal/api"
	"github.com/jask/finsense/internal/logging"
)

// yearSpan is how many years either side of the current one are offered.
const yearSpan = 2

var (
	ErrBoundsMissing = errors.New("both bounds required")
	ErrRangeInverted = errors.New("from is after to")
	ErrNoData        = errors.New("no data for range")
	ErrExportFailed  = errors.New("export failed")
	ErrNotCandidate  = errors.New("month not offered")
	ErrClosed        = errors.New("export dialog closed")
)

// Message is the copy shown in the dialog for an error from Prepare or Run.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBoundsMissing):
		return "Please select both date ranges"
	case errors.Is(err, ErrRangeInverted):
		return "'From' date cannot be after 'To' date"
	case errors.Is(err, ErrNoData):
		return "No data to export for selected range"
	case errors.Is(err, api.ErrSessionExpired):
		return "Session expired. Please sign in again."
	default:
		return "Failed to export data"
	}
}

// Range is an inclusive span of YYYY-MM months.
type Range struct {
	From string
	To   string
}

// Validate checks presence, then ordering. YYYY-MM is fixed width, so string
// order is calendar order.
func (r Range) Validate() error {
	if r.From == "" || r.To == "" {
		return ErrBoundsMissing
	}
	if r.From > r.To {
		return ErrRangeInverted
	}
	return nil
}

// Preview is the line shown under the pickers.
func (r Range) Preview() string {
	return fmt.Sprintf("Exporting data from %s to %s", r.From, r.To)
}

// FileName is the name the exported CSV is saved under.
func FileName(r Range) string {
	return fmt.Sprintf("finsense_%s_to_%s.csv", r.From, r.To)
}

// CandidateMonths lists every YYYY-MM from two years before now's year to two
// years after, in order.
func CandidateMonths(now time.Time) []string {
	year := now.Year()
	out := make([]string, 0, (2*yearSpan+1)*12)
	for y := year - yearSpan; y <= year+yearSpan; y++ {
		for m := 1; m <= 12; m++ {
			out = append(out, fmt.Sprintf("%04d-%02d", y, m))
		}
	}
	return out
}

// DefaultRange is the full calendar year containing now.
func DefaultRange(now time.Time) Range {
	return Range{
		From: fmt.Sprintf("%04d-01", now.Year()),
		To:   fmt.Sprintf("%04d-12", now.Year()),
	}
}

// Exporter downloads the CSV for a range.
type Exporter interface {
	ExportTransactions(ctx context.Context, fromMonth, toMonth string) ([]byte, error)
}

// Recorder logs completed exports.
type Recorder interface {
	Record(ctx context.Context, from, to, path string, size int64) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, from, to, path string, size int64) error

func (f RecorderFunc) Record(ctx context.Context, from, to, path string, size int64) error {
	return f(ctx, from, to, path, size)
}

// Outcome is the result of Run.
type Outcome struct {
	Range    Range
	Path     string
	Bytes    int64
	Replaced bool // an earlier export of the same range was overwritten
	Err      error
}

// Selector is the export dialog state. Like the transaction controller it is
// mutated from the event loop only; Run touches no selector state.
type Selector struct {
	exporter Exporter
	dir      string
	now      func() time.Time
	recorder Recorder
	logger   *log.Logger

	open bool
	rng  Range
}

// Option configures a Selector.
type Option func(*Selector)

func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(s *Selector) { s.recorder = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// NewSelector creates a closed selector that saves files into dir.
func NewSelector(exporter Exporter, dir string, opts ...Option) *Selector {
	s := &Selector{exporter: exporter, dir: dir, now: time.Now, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "export")
	return s
}

// Open shows the dialog with the current calendar year selected. Any earlier
// selection is discarded.
func (s *Selector) Open() {
	s.rng = DefaultRange(s.now())
	s.open = true
}

func (s *Selector) IsOpen() bool { return s.open }

func (s *Selector) Range() Range { return s.rng }

// Dir is where exported files are written.
func (s *Selector) Dir() string { return s.dir }

// CandidateMonths lists the months the pickers offer.
func (s *Selector) CandidateMonths() []string {
	return CandidateMonths(s.now())
}

// SetFrom selects the lower bound. Only candidate months, or "" to clear, are
// accepted.
func (s *Selector) SetFrom(month string) error {
	if err := s.accept(month); err != nil {
		return err
	}
	s.rng.From = month
	return nil
}

// SetTo selects the upper bound.
func (s *Selector) SetTo(month string) error {
	if err := s.accept(month); err != nil {
		return err
	}
	s.rng.To = month
	return nil
}

// CycleFrom moves the lower bound delta steps through the candidates.
func (s *Selector) CycleFrom(delta int) {
	s.rng.From = s.cycle(s.rng.From, delta)
}

// CycleTo moves the upper bound delta steps through the candidates.
func (s *Selector) CycleTo(delta int) {
	s.rng.To = s.cycle(s.rng.To, delta)
}

func (s *Selector) accept(month string) error {
	if !s.open {
		return ErrClosed
	}
	if month == "" || slices.Contains(s.CandidateMonths(), month) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrNotCandidate, month)
}

func (s *Selector) cycle(cur string, delta int) string {
	months := s.CandidateMonths()
	i := slices.Index(months, cur)
	if i < 0 {
		if delta < 0 {
			return months[len(months)-1]
		}
		return months[0]
	}
	i = (i + delta) % len(months)
	if i < 0 {
		i += len(months)
	}
	return months[i]
}

// Prepare validates the current selection and returns the range to export.
func (s *Selector) Prepare() (Range, error) {
	if !s.open {
		return Range{}, ErrClosed
	}
	if err := s.rng.Validate(); err != nil {
		return Range{}, err
	}
	return s.rng, nil
}

// Run downloads r and writes it into the export directory. A non-2xx answer
// means there was nothing to export; no file is written in that case.
// Exporting a range again replaces the earlier file of the same name.
func (s *Selector) Run(ctx context.Context, r Range) Outcome {
	out := Outcome{Range: r}
	if err := r.Validate(); err != nil {
		out.Err = err
		return out
	}
	data, err := s.exporter.ExportTransactions(ctx, r.From, r.To)
	if err != nil {
		var apiErr *api.APIError
		switch {
		case errors.Is(err, api.ErrSessionExpired):
			out.Err = err
		case errors.As(err, &apiErr):
			s.logger.Info("nothing to export", "from", r.From, "to", r.To, "status", apiErr.StatusCode)
			out.Err = fmt.Errorf("%w: %w", ErrNoData, err)
		default:
			s.logger.Warn("export request failed", "from", r.From, "to", r.To, "err", err)
			out.Err = fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
		return out
	}

	path, replaced, err := writeFile(s.dir, FileName(r), data)
	if err != nil {
		s.logger.Error("write export", "err", err)
		out.Err = fmt.Errorf("%w: %w", ErrExportFailed, err)
		return out
	}
	out.Path, out.Bytes, out.Replaced = path, int64(len(data)), replaced
	if replaced {
		s.logger.Info("replaced existing export", "path", path)
	}
	s.logger.Info("exported", "from", r.From, "to", r.To, "path", path, "bytes", out.Bytes)

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, r.From, r.To, path, out.Bytes); err != nil {
			s.logger.Warn("record export history", "err", err)
		}
	}
	return out
}

// Finish applies a Run outcome: success closes the dialog and discards the
// selection, failure keeps both.
func (s *Selector) Finish(o Outcome) {
	if o.Err != nil {
		return
	}
	s.Cancel()
}

// Cancel closes the dialog and discards the selection.
func (s *Selector) Cancel() {
	s.open = false
	s.rng = Range{}
}

func writeFile(dir, name string, data []byte) (string, bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".finsense-export-*")
	if err != nil {
		return "", false, fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", false, fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", false, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", false, fmt.Errorf("close temp file: %w", err)
	}
	path := filepath.Join(dir, name)
	_, statErr := os.Stat(path)
	replaced := statErr == nil
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", false, fmt.Errorf("rename export: %w", err)
	}
	return path, replaced, nil
}
