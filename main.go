package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentracing/opentracing-go"
	"github.com/urfave/cli/v2"

	"github.com/mailbridge/mailbridge/config"
	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/tracing"
	"github.com/mailbridge/mailbridge/services"
)

func main() {
	app := &cli.App{
		Name:  "mailbridge",
		Usage: "relay unread email from allow-listed senders to a chat destination",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start the relay and poll until interrupted",
				Action: runRelay,
			},
			{
				Name:   "probe",
				Usage:  "check the messaging gateway is authorized and exit",
				Action: runProbe,
			},
			{
				Name:   "sweep",
				Usage:  "run one retention sweep of the attachments directory and exit",
				Action: runSweep,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mailbridge: %v", err)
	}
}

func bootstrap() (*config.Config, logger.Logger, io.Closer, *services.Services, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	opentracing.SetGlobalTracer(tracer)

	return cfg, appLogger, closer, services.InitServices(cfg, appLogger), nil
}

func runRelay(c *cli.Context) error {
	_, appLogger, closer, svcs, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if err := svcs.RelayService.Start(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("Shutting down...")
	svcs.RelayService.Stop()
	return nil
}

func runProbe(c *cli.Context) error {
	cfg, appLogger, closer, svcs, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		return err
	}

	span, ctx := tracing.StartTracerSpan(c.Context, "cli.probe")
	defer span.Finish()
	tracing.TagComponentCli(span)

	if err := svcs.GatewayService.ProbeState(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	appLogger.Info("Gateway instance is authorized")
	return nil
}

func runSweep(c *cli.Context) error {
	_, appLogger, closer, svcs, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	span, ctx := tracing.StartTracerSpan(c.Context, "cli.sweep")
	defer span.Finish()
	tracing.TagComponentCli(span)

	if err := svcs.StorageService.EnsureRoot(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	removed, err := svcs.StorageService.Sweep(ctx, 7)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	appLogger.Infof("Sweep complete, removed %d file(s)", removed)
	return nil
}
