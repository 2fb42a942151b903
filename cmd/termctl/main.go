package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) && exit.Code > 0 {
			os.Exit(exit.Code)
		}
		os.Exit(1)
	}
}
