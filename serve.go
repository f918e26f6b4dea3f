package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/archiver"
	"github.com/lotas/tabecho/internal/engine"
	"github.com/lotas/tabecho/internal/scheduler"
	"github.com/lotas/tabecho/internal/server"
	"github.com/lotas/tabecho/internal/tracker"
	"golang.org/x/sync/errgroup"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", getenvInt("TABECHO_PORT", server.DefaultPort), "Listen port on 127.0.0.1")
	interval := fs.Duration("interval", mustDuration("TABECHO_CHECK_INTERVAL", scheduler.DefaultPeriod), "Idle check period")
	settle := fs.Duration("settle", mustDuration("TABECHO_SETTLE_DELAY", archiver.DefaultSettleDelay), "Delay between activating a tab and capturing it")
	logLevel := fs.String("log-level", getenv("TABECHO_LOG_LEVEL", "info"), "Log level")
	pretty := fs.Bool("pretty", false, "Also log to stderr")
	sf := addStoreFlags(fs)
	fs.Parse(args)

	if err := applog.Init(applog.Options{Dir: logDir(), Level: *logLevel, Pretty: *pretty}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	defer applog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := sf.openStore()
	defer store.Close()
	provider, watch, closeSettings := sf.openSettings(ctx)
	defer closeSettings()

	srv := server.New(*port)
	arch := archiver.New(srv, store).WithSettleDelay(*settle)
	eng := engine.New(tracker.New(), store, provider, srv, arch, archiver.NewRetention(store))

	alarm := scheduler.New(store, func(ctx context.Context) error {
		if !srv.Connected() {
			applog.Debug("scan.no_extension")
			return nil
		}
		return eng.Scan(ctx)
	}, scheduler.Config{Name: scheduler.AlarmName, Period: *interval})

	eng.SetAlarm(alarm.Trigger)
	srv.SetHandler(eng)
	srv.OnConnect(func(ctx context.Context) {
		if err := eng.SyncOpenTabs(ctx); err != nil {
			applog.Warn("sync.tabs", err)
		}
	})

	if err := eng.Startup(ctx); err != nil {
		applog.Error("startup.retention", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	g.Go(func() error { return alarm.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-srv.Events():
				eng.HandleEvent(ctx, ev)
			}
		}
	})
	if watch != nil {
		g.Go(func() error { return watch(ctx) })
	}

	fmt.Fprintf(os.Stderr, "tabecho listening on 127.0.0.1:%d\n", *port)
	if err := g.Wait(); err != nil {
		applog.Error("serve", err)
		fatalf("%v", err)
	}
}
