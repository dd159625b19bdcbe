package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drover-dev/drover/internal/cmd"
	"github.com/drover-dev/drover/internal/exitcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\nRun interrupted; resume with the same command")
			exitcode.Exit(exitcode.Interrupted)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		// Commands can pin their own exit code (e.g. a halted run).
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			exitcode.Exit(coded.ExitCode())
		}
		exitcode.ExitWithError(err)
	}
	exitcode.Exit(exitcode.Success)
}
