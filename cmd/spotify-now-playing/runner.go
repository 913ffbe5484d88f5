package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/justestif/spotify-now-playing/internal/auth"
	"github.com/justestif/spotify-now-playing/internal/config"
	"github.com/justestif/spotify-now-playing/internal/spotify"
	"github.com/justestif/spotify-now-playing/internal/store"
	"github.com/justestif/spotify-now-playing/internal/tracks"
	"github.com/justestif/spotify-now-playing/internal/web"
	webfs "github.com/justestif/spotify-now-playing/web"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

// Runner holds the dependencies for CLI commands and provides a method for each action.
type Runner struct {
	config *config.Config
	logger *zap.Logger
	output io.Writer

	// store overrides the DATABASE_URL store. It is not closed by the runner.
	store store.Store
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *config.Config
	Logger *zap.Logger
	Output io.Writer
	Store  store.Store
}

// NewRunner creates a new Runner with the provided configuration.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = config.Load()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		store:  opts.Store,
	}
}

// services wires the store, authorizer and track service.
// The returned close func releases the store.
func (r *Runner) services(ctx context.Context) (*auth.Authorizer, *tracks.Service, func(), error) {
	st := r.store
	closeFn := func() {}
	if st == nil {
		opened, err := store.Open(ctx, r.config.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening token store: %w", err)
		}
		st = opened
		closeFn = func() {
			if err := opened.Close(); err != nil {
				r.logger.Warn("Closing token store failed", zap.Error(err))
			}
		}
	}

	authorizer := auth.New(r.config.ClientID, r.config.ClientSecret, st,
		auth.WithAccountsURL(r.config.AccountsURL),
		auth.WithLogger(r.logger.Named("auth")),
	)
	svc := tracks.NewService(st, authorizer,
		tracks.WithAPIURL(r.config.APIURL),
		tracks.WithRefreshFallback(r.config.RefreshFallback),
		tracks.WithLogger(r.logger.Named("tracks")),
	)
	return authorizer, svc, closeFn, nil
}

// Serve runs the HTTP gateway until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		// Requests report the configuration error; the page and health check still work.
		r.logger.Warn("Spotify credentials missing", zap.Error(err))
	}

	authorizer, svc, closeFn, err := r.services(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:           cmd.String("addr"),
		TemplatesFS:    templates,
		StaticFS:       static,
		Auth:           authorizer,
		Tracks:         svc,
		AllowedOrigins: r.config.AllowedOrigins,
		APIBaseURL:     r.config.APIBaseURL,
		PollInterval:   r.config.PollInterval,
		Logger:         r.logger.Named("web"),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

// Login runs the authorization flow with a loopback callback.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	authorizer, _, closeFn, err := r.services(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	addr := cmd.String("addr")
	fmt.Fprintf(r.output, "Make sure %s is a redirect URI of your Spotify app.\n", auth.RedirectURI("http://"+addr))
	if err := authorizer.LoginLoopback(ctx, addr, r.output); err != nil {
		return err
	}

	fmt.Fprintln(r.output, styles.ok.Render("Spotify connected."))
	return nil
}

// Now prints the current track once.
func (r *Runner) Now(ctx context.Context, cmd *cli.Command) error {
	_, svc, closeFn, err := r.services(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	current, err := svc.FetchCurrentTrack(ctx)
	if err != nil {
		return explain(err)
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(r.output)
		enc.SetIndent("", "  ")
		return enc.Encode(current)
	}

	fmt.Fprintln(r.output, renderTrack(current))
	return nil
}

// Watch polls and redraws the current track until interrupted.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	_, svc, closeFn, err := r.services(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	poller := &tracks.Poller{
		Fetcher:     svc,
		Interval:    cmd.Duration("interval"),
		StopOnError: cmd.Bool("stop-on-error"),
	}

	err = poller.Run(ctx, func(res tracks.Result) {
		fmt.Fprint(r.output, clearScreen)
		if res.Err != nil {
			fmt.Fprintln(r.output, renderError(explain(res.Err)))
			return
		}
		fmt.Fprintln(r.output, renderTrack(res.Track))
		fmt.Fprintln(r.output, styles.help.Render(fmt.Sprintf("updated %s, every %s, ctrl+c to quit",
			res.At.Format("15:04:05"), poller.Interval)))
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return explain(err)
}

// Logout deletes the stored credentials.
func (r *Runner) Logout(ctx context.Context, _ *cli.Command) error {
	authorizer, _, closeFn, err := r.services(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := authorizer.Logout(ctx); err != nil {
		return fmt.Errorf("deleting tokens: %w", err)
	}
	fmt.Fprintln(r.output, styles.ok.Render("Spotify credentials removed."))
	return nil
}

// explain adds a hint to errors a user can act on.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tracks.ErrNotConnected):
		return fmt.Errorf("%w: run `spotify-now-playing login` first", err)
	case errors.Is(err, spotify.ErrProviderAPI):
		return fmt.Errorf("%w (try `spotify-now-playing login` if this persists)", err)
	}
	return err
}
