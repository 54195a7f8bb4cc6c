package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shiftwatch/internal/app/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shiftwatch: %v\n", err)
		stop()
		os.Exit(1)
	}
}
