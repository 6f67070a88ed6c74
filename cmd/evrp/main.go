// Command evrp solves EVRPTW instances from the command line or serves the
// solver over HTTP.
//
//	evrp solve -instance c101C5_locations.csv [-config evrp.yaml] [-runs 4] [-out report.json]
//	evrp serve [-config evrp.yaml]
//	evrp version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"evrptw/internal/api"
	"evrptw/internal/buildinfo"
	"evrptw/internal/config"
	"evrptw/internal/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: evrp <solve|serve|version> [flags]\n")
	fmt.Fprintf(os.Stderr, "run 'evrp <command> -h' for command flags\n")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "solve":
		err = runSolve(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "version":
		fmt.Println(buildinfo.String())
	case "-h", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Msg("evrp failed")
		stop()
		os.Exit(1)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("EVRP_CONFIG"), "YAML config file")
	addr := fs.String("addr", "", "listen address (overrides app.addr)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.App.Addr = *addr
	}
	logger.Init(cfg.Log)
	log := *logger.Get()

	srv, err := api.NewServer(ctx, cfg, log)
	if err != nil {
		return err
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.Webhook.Enabled {
		go srv.NewWebhookWorker().Run(workerCtx)
	}

	httpSrv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.App.Addr).
			Str("env", cfg.App.Env).
			Str("store", cfg.Store.Driver).
			Str("version", buildinfo.Version).
			Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	stopWorker()
	return srv.Shutdown(shutdownCtx)
}
