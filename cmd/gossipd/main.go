package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/voidphone/gossip/internal/gconfig"
	"github.com/voidphone/gossip/internal/logctx"
	"github.com/voidphone/gossip/internal/metrics"
	"github.com/voidphone/gossip/pkg/gossip/server"
)

var configFlag = cli.StringFlag{
	Name:  "config,c",
	Usage: "path to the gossip node's YAML config file",
	Value: "gossip.yaml",
}

var (
	debugFlag = cli.BoolFlag{
		Name:  "debug,d",
		Usage: "force debug-level logging",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus /metrics on (empty disables it)",
	}
)

func main() {
	ctl := cli.NewApp()
	ctl.Name = "gossipd"
	ctl.Usage = "Gossip relay node for an anonymous overlay"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the gossip relay node",
			Action: runNode,
			Flags:  []cli.Flag{configFlag, debugFlag, metricsAddrFlag},
		},
		{
			Name:  "config",
			Usage: "configuration utilities",
			Subcommands: []cli.Command{
				{
					Name:   "check",
					Usage:  "validate a config file without starting the node",
					Action: checkConfig,
					Flags:  []cli.Flag{configFlag},
				},
				{
					Name:   "dump",
					Usage:  "print the parsed, validated configuration as YAML",
					Action: dumpConfig,
					Flags:  []cli.Flag{configFlag},
				},
			},
		},
	}

	if err := ctl.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNode(ctx *cli.Context) error {
	cfg, err := gconfig.LoadFile(ctx.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Errorf("config: %w", err), 1)
	}

	log, err := logctx.New(logctx.Options{Debug: ctx.Bool("debug")})
	if err != nil {
		return cli.NewExitError(fmt.Errorf("logger: %w", err), 1)
	}
	defer log.Sync() //nolint:errcheck

	srv := server.New(cfg, log)

	gctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	go func() {
		if err := metrics.Serve(gctx, ctx.String("metrics-addr"), log); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv.Run(gctx)
}

func checkConfig(ctx *cli.Context) error {
	if _, err := gconfig.LoadFile(ctx.String("config")); err != nil {
		return cli.NewExitError(fmt.Errorf("config invalid: %w", err), 1)
	}
	fmt.Fprintln(ctx.App.Writer, "config OK")
	return nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := gconfig.LoadFile(ctx.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Errorf("config invalid: %w", err), 1)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	fmt.Fprint(ctx.App.Writer, string(out))
	return nil
}
