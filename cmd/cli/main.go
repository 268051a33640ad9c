package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/biolockgo/internal/app"
	"github.com/specialistvlad/biolockgo/internal/cli"
	"github.com/specialistvlad/biolockgo/internal/hcl"
)

// main is the entrypoint for the biolockgo application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical config errors; they surface as usage errors.
	defer func() {
		if r := recover(); r != nil {
			err = &cli.ExitError{Code: 2, Message: fmt.Sprintf("application startup panicked: %v", r)}
		}
	}()

	biolockApp := app.NewApp(outW, appConfig, hcl.NewLoader())
	return biolockApp.Run(ctx)
}
