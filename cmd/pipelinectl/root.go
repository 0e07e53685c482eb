// Command pipelinectl is the CLI shell over the engine operations (spec §6):
// one verb per engine operation, `serve` to start the HTTP API in-process,
// and `config` for local config file management. Every subcommand exits 0 on
// success, 1 on an application error, 2 on a usage error, 3 when the
// coordinator is unreachable, and 130 on interrupt.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/genbatch/pipeline/internal/cliclient"
)

const (
	exitOK          = 0
	exitAppError    = 1
	exitUsage       = 2
	exitConnection  = 3
	exitInterrupted = 130
)

var (
	flagServerURL string
	flagToken     string
	flagFormat    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "CLI for the pipeline coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagServerURL, "server", envOr("PIPELINE_SERVER_URL", "http://localhost:8080"), "coordinator base URL")
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("PIPELINE_TOKEN"), "tenant bearer token")
	root.PersistentFlags().StringVar(&flagFormat, "format", "table", "output format: table|json|plain")

	root.AddCommand(newRunsCmd(), newDocsCmd(), newEvalCmd(), newConfigCmd(), newServeCmd())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func client() *cliclient.Client {
	return cliclient.New(flagServerURL, flagToken)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	if ctx.Err() != nil {
		return exitInterrupted
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	switch {
	case isUsageError(err):
		return exitUsage
	case isConnectionError(err):
		return exitConnection
	default:
		return exitAppError
	}
}

func isConnectionError(err error) bool {
	_, ok := err.(*cliclient.ConnectionError)
	return ok
}

func isUsageError(err error) bool {
	_, ok := err.(*usageError)
	return ok
}

// usageError marks a CLI-side argument mistake, distinct from an error the
// coordinator itself returned.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
