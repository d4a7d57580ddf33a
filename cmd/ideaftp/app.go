package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"go.uber.org/zap"

	"github.com/quocson95/ideaftp/pkg/deploy"
	"github.com/quocson95/ideaftp/pkg/logging"
	"github.com/quocson95/ideaftp/pkg/metrics"
	"github.com/quocson95/ideaftp/pkg/profile"
	"github.com/quocson95/ideaftp/pkg/retry"
	"github.com/quocson95/ideaftp/pkg/session"
	"github.com/quocson95/ideaftp/pkg/staging"
	"github.com/quocson95/ideaftp/pkg/transport"
	"github.com/quocson95/ideaftp/pkg/tui"
)

type options struct {
	home     string
	logLevel string
	retries  int
}

type app struct {
	dataDir  string
	settings *profile.SettingsStore
	store    *profile.Store
	sessions *session.Manager
	stager   *staging.Stager
	svc      *deploy.Service
	log      *zap.Logger
	retries  int

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newApp(opts options, in io.Reader, out, errOut io.Writer) (*app, error) {
	dataDir := opts.home
	if dataDir == "" {
		var err error
		if dataDir, err = profile.DataDir(); err != nil {
			return nil, err
		}
	}

	settingsStore, err := profile.NewSettingsStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings := settingsStore.Get()
	if opts.logLevel != "" {
		settings.LogLevel = opts.logLevel
	}

	log, _, err := logging.New(logging.Config{
		Level:      settings.LogLevel,
		Format:     settings.LogFormat,
		OutputPath: logging.DefaultPath(dataDir),
	})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	store, err := profile.NewStore(dataDir)
	if err != nil {
		return nil, err
	}

	hostKeys, err := transport.HostKeyCallback(settings.KnownHostsPath, settings.StrictHostKeys, log)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(deploy.NewOpenFunc(transport.Options{
		ConnectTimeout:  settings.ConnectTimeout(),
		HostKeyCallback: hostKeys,
		Logger:          log,
	}), log)

	stager, err := staging.NewStager("")
	if err != nil {
		return nil, err
	}

	var picker deploy.Picker
	if tui.IsInteractive(in) {
		picker = &tui.Picker{In: in, Out: errOut}
	}

	svc := deploy.NewService(store, sessions, picker, stager, log, deploy.Config{
		OperationTimeout: settings.OperationTimeout(),
		Concurrency:      settings.Concurrency,
	})

	log.Debug("started", zap.String("data_dir", dataDir), zap.Int("retries", opts.retries))
	return &app{
		dataDir:  dataDir,
		settings: settingsStore,
		store:    store,
		sessions: sessions,
		stager:   stager,
		svc:      svc,
		log:      log,
		retries:  opts.retries,
		in:       in,
		out:      out,
		errOut:   errOut,
	}, nil
}

func (a *app) close(metricsFile string) {
	a.sessions.DisconnectAll()
	if left := a.stager.Staged(); len(left) > 0 {
		a.log.Info("removing staged files", zap.String("dir", a.stager.Dir()), zap.Strings("files", left))
	}
	if err := a.stager.Cleanup(); err != nil {
		a.log.Warn("staging cleanup failed", zap.Error(err))
	}
	if metricsFile != "" {
		if err := metrics.WriteFile(metricsFile); err != nil {
			fmt.Fprintf(a.errOut, "metrics: %v\n", err)
		}
	}
	_ = a.log.Sync()
}

// fail reports err as "<operation>: <cause>"
func (a *app) fail(op string, err error) {
	a.log.Error("command failed", zap.String("op", op), zap.Error(err))
	fmt.Fprintf(a.errOut, "%s: %v\n", op, err)
}

// withRetry runs fn, retrying connect and transfer failures when -retries
// is set. Listing and mkdir failures are returned at once.
func (a *app) withRetry(ctx context.Context, op string, fn func() error) error {
	if a.retries <= 0 {
		return fn()
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = a.retries + 1
	attempt := 0
	err := retry.Do(ctx, cfg, func() error {
		attempt++
		err := fn()
		if err != nil && retriable(err) {
			a.log.Warn("retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return retry.Retryable(err)
		}
		return err
	})
	return retry.Unwrap(err)
}

func retriable(err error) bool {
	var connErr *transport.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return false // local file problem
	}
	var trErr *transport.TransferError
	return errors.As(err, &trErr)
}
