package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/foedusgo/occtxn/src/config"
	"github.com/foedusgo/occtxn/src/engine"
)

// CloseTimeout is a budget for how long a caller may wait for Close to
// persist the savepoint and release worker memory. Nothing in this module
// applies it; Close itself is unbounded.
const CloseTimeout = 15 * time.Second

// Entrypoint owns one Engine's process lifecycle: load configuration,
// construct the engine, start it, and shut it down cleanly on Close.
//
// Grounded on the teacher's src/app.APIEntrypoint Init/Run/Close shape,
// generalized from "build an HTTP delivery.Server" to "build an
// engine.Engine" — this core has no HTTP surface, so Run blocks on the
// context instead of serving requests.
type Entrypoint struct {
	DotenvPath string

	Env config.Options
	Eng *engine.Engine

	log *zap.SugaredLogger
}

// Init loads configuration and constructs the engine's collaborators. It
// does not start the background epoch advancer or bind worker memory;
// Run does that via Engine.Start.
func (e *Entrypoint) Init(_ context.Context) error {
	opts, err := config.Load(e.DotenvPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	e.Env = opts

	var zlog *zap.Logger
	if opts.Environment == config.EnvDev {
		zlog, err = zap.NewDevelopment()
	} else {
		zlog, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}
	e.log = zlog.Sugar()

	eng, err := engine.New(opts, afero.NewOsFs(), e.log)
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}
	e.Eng = eng

	return nil
}

// Run starts the engine and blocks until ctx is cancelled.
func (e *Entrypoint) Run(ctx context.Context) error {
	if err := e.Eng.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	<-ctx.Done()
	return nil
}

// Close stops the engine, persisting its savepoint, and flushes logs.
// Engine.Stop is synchronous and unbounded, and Close takes no context;
// cmd/occtxnd calls Close without a time bound.
func (e *Entrypoint) Close() (err error) {
	if e.Eng != nil {
		err = e.Eng.Stop()
	}

	if e.log != nil {
		if err != nil {
			e.log.Errorw("failed to stop engine cleanly", "error", err)
		}
		if syncErr := e.log.Sync(); syncErr != nil && err == nil {
			err = syncErr
		}
	}

	return
}
