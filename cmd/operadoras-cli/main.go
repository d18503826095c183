// Command operadoras-cli queries a running operadoras API and prints the
// results as JSON.
//
// Usage:
//
//	operadoras-cli companies [-page N] [-size N] [-search TEXT]
//	operadoras-cli company ID
//	operadoras-cli cnpj CNPJ
//	operadoras-cli expenses [-with-company] ID
//	operadoras-cli stats
//	operadoras-cli notify-refresh [-reason TEXT]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"operadoras/internal/amqp"
	"operadoras/internal/cli"
	"operadoras/internal/client"
	"operadoras/internal/config"
	"operadoras/internal/core"
	applog "operadoras/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateClient)
	logger := cli.SetupLogger(cfg, applog.ComponentClient, os.Stderr)

	source, err := client.NewHTTPSource(cfg.APIBaseURL, cfg.APITimeout, logger.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		facade: client.NewFacade(source, cfg.MaxPageSize),
		stdout: os.Stdout,
		stderr: os.Stderr,
		publisher: func() (publisher, io.Closer, error) {
			if cfg.AMQPURL == "" {
				return nil, nil, fmt.Errorf("AMQP_URL is not set")
			}
			c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP).Logger)
			if err != nil {
				return nil, nil, err
			}
			return c, c, nil
		},
	}
	os.Exit(a.run(ctx, os.Args[1:]))
}

// exitCode maps an error kind to the process exit status.
func exitCode(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return 2
	case core.KindNotFound:
		return 3
	case core.KindUnavailable, core.KindTimeout:
		return 4
	default:
		return 1
	}
}
