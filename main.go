package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/applypilot/cmd"
)

// main lets `go run .` behave like the applypilot binary.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
