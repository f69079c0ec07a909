// Command devnode serves a simulated ledger node with a faucet over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/middleware"
)

func main() {
	addr := flag.String("addr", ":57291", "listen address")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.New(*logLevel)
	node := devnet.New()

	app := fiber.New(fiber.Config{AppName: "devnode", DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(logger))
	devnet.NewHandler(node).Register(app)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("devnode listening", "addr", *addr, "version", devnet.Version)
		errCh <- app.Listen(*addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "devnode: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
