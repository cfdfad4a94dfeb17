package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/nhle/bcfeed/internal/credential"
	"github.com/nhle/bcfeed/internal/extract"
	"github.com/nhle/bcfeed/internal/logging"
	"github.com/nhle/bcfeed/internal/mailbox"
	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/server"
	"github.com/nhle/bcfeed/internal/store"
	bcsync "github.com/nhle/bcfeed/internal/sync"
)

// Runner holds the dependencies shared by the commands.
type Runner struct {
	configPath  string
	config      *model.AppConfig
	logger      *log.Logger
	input       io.Reader
	output      io.Writer
	accessible  bool
	credentials func() (*credential.Store, error)
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Input  io.Reader
	Output io.Writer

	// Accessible runs prompts line by line instead of as a full-screen
	// form. It is also enabled by the ACCESSIBLE environment variable.
	Accessible bool

	// Credentials opens the password store; the system keyring by default.
	Credentials func() (*credential.Store, error)
}

// NewRunner creates a Runner. The configuration is read by Load.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.New(os.Stderr, "info")
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Credentials == nil {
		opts.Credentials = credential.Open
	}

	return &Runner{
		logger:      opts.Logger,
		input:       opts.Input,
		output:      opts.Output,
		accessible:  opts.Accessible || os.Getenv("ACCESSIBLE") != "",
		credentials: opts.Credentials,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, syncCommand, releasesCommand, statsCommand, loginCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Load reads the configuration and sets up logging before any command
// runs.
func (r *Runner) Load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	cfg, err := model.LoadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	r.config = cfg
	r.logger = logging.New(os.Stderr, cfg.Log.Level)
	return ctx, nil
}

// openStore opens the release database, creating its directory.
func (r *Runner) openStore() (*store.SQLiteStore, error) {
	path := r.config.Database.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	return store.NewSQLiteStore(path)
}

// newOrchestrator wires the IMAP connector to s. A password missing from
// the configuration is read from the keyring.
func (r *Runner) newOrchestrator(s bcsync.Store) (*bcsync.Orchestrator, error) {
	imapCfg := r.config.IMAP
	if imapCfg.Password == "" {
		creds, err := r.credentials()
		if err != nil {
			return nil, err
		}
		if err := creds.ResolvePassword(&imapCfg); err != nil {
			return nil, fmt.Errorf("%w (run `bcfeed login` or set BCFEED_IMAP_PASSWORD)", err)
		}
	}

	connector := mailbox.NewIMAPConnector(mailbox.IMAPOptions{
		BodyFetchRate: imapCfg.BodyFetchRate,
		Logger:        r.logger.WithPrefix("imap"),
	})

	return bcsync.New(connector, mailbox.Credentials{
		Host:     imapCfg.Host,
		Port:     imapCfg.Port,
		Username: imapCfg.Username,
		Password: imapCfg.Password,
		TLS:      imapCfg.TLS,
	}, s, r.config.Sync,
		bcsync.WithLogger(r.logger.WithPrefix("sync")),
		bcsync.WithExtractor(extract.New(extract.WithLogger(r.logger.WithPrefix("extract")))),
	), nil
}

// Serve runs the HTTP server until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	orch, err := r.newOrchestrator(s)
	if err != nil {
		return err
	}

	addr := r.config.Server.Addr
	if a := cmd.String("addr"); a != "" {
		addr = a
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(orch, s, r.logger.WithPrefix("http")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	if cmd.Bool("sync") {
		if _, err := orch.StartSync(ctx); err != nil {
			r.logger.Warn("initial sync not started", "err", err)
		}
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	orch.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	for orch.Running() {
		select {
		case <-shutdownCtx.Done():
			r.logger.Warn("sync still running at exit")
			return nil
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// Sync runs one sync in the foreground, printing progress. An interrupt
// stops the run at its next batch boundary.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if limit := cmd.Int("limit"); limit >= 0 {
		r.config.Sync.Limit = int(limit)
	}

	orch, err := r.newOrchestrator(s)
	if err != nil {
		return err
	}

	if cmd.Bool("reset") {
		if err := orch.ResetCheckpoint(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.output, renderNotice("Backlog checkpoint cleared"))
	}

	if _, err := orch.StartSync(ctx); err != nil {
		return err
	}

	stopWatch := context.AfterFunc(ctx, func() {
		if orch.Cancel() {
			r.logger.Warn("interrupted, stopping after the current batch")
		}
	})
	defer stopWatch()

	quiet := cmd.Bool("quiet")
	var final model.ProgressEvent
	for ev := range orch.SubscribeProgress() {
		if ev.Done {
			final = ev
			break
		}
		if !quiet && ev.LastFound != nil && strings.HasPrefix(ev.Message, "found ") {
			fmt.Fprintln(r.output, renderFound(*ev.LastFound))
		}
	}

	fmt.Fprintln(r.output, renderSummary(final))
	if final.Failure != nil {
		return errors.New(final.Failure.Message)
	}
	return nil
}

// Releases prints one page of the stored feed.
func (r *Runner) Releases(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	filter := store.ReleaseFilter{Query: cmd.String("query")}
	if since, ok := store.WindowStart(cmd.String("window"), time.Now()); ok {
		filter.Since = &since
	}
	switch strings.ToLower(cmd.String("type")) {
	case "":
	case "album":
		filter.Type = model.ReleaseTypeAlbum
	case "track":
		filter.Type = model.ReleaseTypeTrack
	default:
		return fmt.Errorf("unknown release type %q", cmd.String("type"))
	}

	page, err := s.ListReleases(ctx, filter, cmd.String("sort"), int(cmd.Int("page")), store.DefaultPerPage)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(page)
	}
	fmt.Fprintln(r.output, renderReleasePage(page))
	return nil
}

// Stats prints feed statistics.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(ctx, time.Now())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats)
	}
	fmt.Fprintln(r.output, renderStats(stats))
	return nil
}

func (r *Runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.output)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
