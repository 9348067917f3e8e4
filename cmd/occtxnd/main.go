// Command occtxnd runs one transactional-core engine instance until
// interrupted.
//
// Grounded on the teacher's cmd/server/singleNode shape (a single main.go
// constructing and running one storage instance), rewired around cobra the
// way the rest of the example pack's CLIs (talent-plan-tinykv, NucleusDB)
// structure a daemon entrypoint: a root command with a "run" subcommand
// rather than a bare func main.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foedusgo/occtxn/src/app"
)

var dotenvPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "occtxnd",
		Short: "occtxnd runs a single-process OCC transactional storage engine",
	}
	root.PersistentFlags().StringVar(&dotenvPath, "env-file", "", "path to a .env file of engine options (optional)")
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the engine and block until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			entrypoint, err := app.NewEntrypoint(ctx, dotenvPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := entrypoint.Close(); err != nil {
					fmt.Fprintln(os.Stderr, "shutdown error:", err)
				}
			}()

			return entrypoint.Run(ctx)
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
