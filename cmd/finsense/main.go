package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/agnivade/levenshtein"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/jask/finsense/internal/account"
	"github.com/jask/finsense/internal/api"
	"github.com/jask/finsense/internal/config"
	"github.com/jask/finsense/internal/export"
	"github.com/jask/finsense/internal/history"
	"github.com/jask/finsense/internal/logging"
	"github.com/jask/finsense/internal/session"
	"github.com/jask/finsense/internal/tui"
	"github.com/jask/finsense/internal/txlist"
)

var commands = []string{"tui", "export", "login", "logout", "whoami", "help"}

const usage = `Usage: finsense [command] [flags]

Commands:
  tui       open the terminal UI (default)
  export    download transactions as CSV (--from YYYY-MM --to YYYY-MM)
  login     sign in (--email; password read from the terminal)
  logout    forget the stored session
  whoami    print the signed-in user
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "finsense: %v\n", err)
		os.Exit(1)
	}
}

// app is everything a command needs, built once from config.
type app struct {
	cfg      config.Config
	logger   *log.Logger
	sessions *session.Store
	client   *api.Client
	accounts *account.Service
	closers  []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, logCloser, err := logging.OpenFile(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	sessionPath := cfg.Session.Path
	if sessionPath == "" {
		if sessionPath, err = session.DefaultPath(); err != nil {
			logCloser.Close()
			return nil, fmt.Errorf("session path: %w", err)
		}
	}
	sessions := session.NewStore(sessionPath)

	client := api.New(cfg.API.BaseURL, sessions, logger,
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
	)
	logger.Info("starting", "base_url", cfg.API.BaseURL)
	return &app{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		client:   client,
		accounts: account.NewService(client, sessions, logger),
		closers:  []io.Closer{logCloser},
	}, nil
}

// selector builds the export selector, recording into the history database
// when it can be opened.
func (a *app) selector() (*export.Selector, *history.Store) {
	opts := []export.Option{export.WithLogger(a.logger)}
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		a.logger.Warn("export history unavailable", "path", a.cfg.History.Path, "err", err)
	} else {
		a.closers = append(a.closers, store)
		opts = append(opts, export.WithRecorder(export.RecorderFunc(
			func(ctx context.Context, from, to, path string, size int64) error {
				_, err := store.Record(ctx, from, to, path, size)
				return err
			})))
	}
	return export.NewSelector(a.client, a.cfg.Export.Dir, opts...), store
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := "tui"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	case "tui", "export", "login", "logout", "whoami":
	default:
		return unknownCommand(cmd)
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "export":
		return a.runExport(ctx, args, stdout)
	case "login":
		return a.runLogin(ctx, args, stdout, stderr)
	case "logout":
		if err := a.accounts.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Signed out.")
		return nil
	case "whoami":
		return a.runWhoami(stdout)
	default:
		return a.runTUI(ctx)
	}
}

func unknownCommand(cmd string) error {
	best, bestDist := "", 3
	for _, c := range commands {
		if d := levenshtein.ComputeDistance(cmd, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best != "" {
		return fmt.Errorf("unknown command %q, did you mean %q?", cmd, best)
	}
	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

func (a *app) runTUI(ctx context.Context) error {
	var profile *session.Profile
	if tok, err := a.sessions.Token(); err == nil && tok != "" {
		p, err := a.sessions.Profile()
		if err != nil {
			a.logger.Warn("read profile", "err", err)
		}
		profile = &p
	}

	sel, store := a.selector()
	deps := tui.Deps{
		Transactions: txlist.New(a.client, a.logger),
		Export:       sel,
		Accounts:     a.accounts,
		Logger:       a.logger,
	}
	if store != nil {
		deps.History = store
	}
	model := tui.New(ctx, deps, tui.Options{
		Currency: a.cfg.UI.CurrencySymbol,
		CardView: a.cfg.UI.CardView,
		Profile:  profile,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func (a *app) runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	from := fs.String("from", "", "first month, YYYY-MM")
	to := fs.String("to", "", "last month, YYYY-MM")
	dir := fs.String("dir", "", "directory to write into (default export.dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir != "" {
		a.cfg.Export.Dir = *dir
	}

	sel, _ := a.selector()
	sel.Open()
	if err := sel.SetFrom(*from); err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	if err := sel.SetTo(*to); err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	r, err := sel.Prepare()
	if err != nil {
		return errors.New(export.Message(err))
	}
	out := sel.Run(ctx, r)
	sel.Finish(out)
	if out.Err != nil {
		return errors.New(export.Message(out.Err))
	}
	fmt.Fprintf(stdout, "%s\nSaved %s (%d bytes)\n", r.Preview(), out.Path, out.Bytes)
	return nil
}

func (a *app) runLogin(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in := bufio.NewReader(os.Stdin)
	if *email == "" {
		fmt.Fprint(stderr, "Email: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		*email = strings.TrimSpace(line)
	}
	password, err := readPassword(in, stderr)
	if err != nil {
		return err
	}
	p, err := a.accounts.Login(ctx, *email, password)
	if err != nil {
		return errors.New(account.Message(err))
	}
	fmt.Fprintf(stdout, "Signed in as %s\n", displayName(p))
	return nil
}

// readPassword reads without echo from a terminal, or a plain line when
// stdin is piped.
func readPassword(in *bufio.Reader, prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(prompt, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func (a *app) runWhoami(stdout io.Writer) error {
	tok, err := a.sessions.Token()
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if tok == "" {
		fmt.Fprintln(stdout, "Not signed in.")
		return nil
	}
	p, err := a.sessions.Profile()
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	fmt.Fprintln(stdout, displayName(p))
	return nil
}

func displayName(p session.Profile) string {
	switch {
	case p.Name != "" && p.Email != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Email)
	case p.Name != "":
		return p.Name
	default:
		return p.Email
	}
}
