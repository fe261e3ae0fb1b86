// Command qkdsim simulates BB84 and KMB09 key exchanges and reports the error
// rate an intercept-resend eavesdropper introduces.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alan-christopher/qkdsim/internal/logger"
)

// Version is overridden at link time.
var Version = "v0.1.0"

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log := logger.New(logger.Config{})
		log.Error().Err(err).Msg("qkdsim failed")
		os.Exit(exitFailure)
	}
	os.Exit(exitSuccess)
}
