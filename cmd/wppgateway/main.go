package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heureca/wppgateway/config"
	"github.com/heureca/wppgateway/internal/app"
	"github.com/heureca/wppgateway/internal/gatewayapi"
	"github.com/heureca/wppgateway/internal/webserver"
)

var (
	configFile = flag.String("c", "/etc/wppgateway.yml", "config file")
	initDB     = flag.Bool("initdb", false, "drop and recreate the database schema, then exit")
	showVer    = flag.Bool("v", false, "print version and exit")
)

var version = "dev"

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("wppgateway", version)
		return
	}

	cfg := config.LoadConfig(*configFile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initDB {
		application.InitDb()
		zap.S().Info("database initialized")
		return
	}

	server := webserver.Init(cfg, application.Resolver())
	if collector := application.Collector(); collector != nil {
		webserver.RequestObserver = collector.RecordRequest
	}
	gatewayapi.InitRouter(
		application.Registry(),
		application.Pipeline(),
		application.Ledger(),
		application.Accounts(),
		application.Collector(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Listen(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.S().Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
