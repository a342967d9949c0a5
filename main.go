package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"pesaje-scale-link/broadcast"
	"pesaje-scale-link/config"
	"pesaje-scale-link/link"
	"pesaje-scale-link/logging"
	"pesaje-scale-link/stability"
	"pesaje-scale-link/types"
	"pesaje-scale-link/utils"
	"pesaje-scale-link/web"
	"pesaje-scale-link/wedge"
	"pesaje-scale-link/weighing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logging.Init(cfg.LogLevel, cfg.LogPretty)
	defer logging.ResetStream()
	sysLog := logging.For("system")
	scaleLog := logging.For("scale")
	webLog := logging.For("web")

	events := broadcast.New[types.Event](broadcast.Options{
		History:        cfg.History,
		MaxSubscribers: cfg.MaxSubscribers,
		Logger:         &webLog,
	})
	defer events.Close()

	manager := link.New(link.Options{
		Events:   events,
		Defaults: cfg.Link,
		Stability: stability.Config{
			Window:    cfg.Window,
			Tolerance: cfg.Tolerance,
			RunLength: cfg.RunLength,
		},
		ConnectTimeout: cfg.ConnectTimeout,
		Mock:           cfg.Mock,
		Logger:         &scaleLog,
	})
	defer manager.Close()

	store, err := weighing.OpenFileStore(cfg.StoreFile)
	if err != nil {
		return err
	}
	defer store.Close()

	output, err := wedge.FromMode(cfg.Wedge)
	if err != nil {
		return err
	}
	service := weighing.NewService(manager, store, output, logging.For("weighing"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoConnect || cfg.Mock {
		// Весы можно подключить позже через веб-интерфейс
		if err := manager.Connect(ctx, types.LinkConfig{}); err != nil {
			sysLog.Warn().Err(err).Msg("autoconnect failed, use POST /scale/connect")
		}
	}
	printStatus(sysLog, manager.Status())

	server := web.NewServer(manager, service, wedge.Clipboard{}, logging.Stream, webLog)
	if err := web.StartServer(ctx, cfg.Addr, server); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	sysLog.Info().Msg("shutting down")
	return nil
}

func printStatus(log zerolog.Logger, st types.Status) {
	port := st.Port
	if port == "" {
		port = "none"
	}
	log.Info().
		Bool("mock", st.MockMode).
		Msg(fmt.Sprintf("scale %s (%s)", utils.BoolToString(st.Connected), port))
}
