package app

import (
	"context"
	"fmt"
)

// NewEntrypoint constructs and initializes an Entrypoint against the dotenv
// file at dotenvPath ("" to skip loading one and rely on process env vars
// alone). Mirrors the teacher's app.NewServer() as the single call a cmd
// package needs to get a ready-to-Run instance.
func NewEntrypoint(ctx context.Context, dotenvPath string) (*Entrypoint, error) {
	e := &Entrypoint{DotenvPath: dotenvPath}
	if err := e.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing entrypoint: %w", err)
	}
	return e, nil
}
