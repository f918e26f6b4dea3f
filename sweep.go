package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/archiver"
	"github.com/lotas/tabecho/internal/export"
	"github.com/lotas/tabecho/internal/firefox"
)

func runSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	profileName := fs.String("profile", getenv("TABECHO_PROFILE", ""), "Firefox profile name (default: the default profile)")
	dryRun := fs.Bool("dry-run", false, "Show what would be archived")
	sf := addStoreFlags(fs)
	fs.Parse(args)

	if err := applog.Init(applog.Options{Dir: logDir(), Level: getenv("TABECHO_LOG_LEVEL", "info")}); err == nil {
		defer applog.Close()
	}

	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fatalf("discovering Firefox profiles: %v", err)
	}
	profile, err := firefox.FindProfile(profiles, *profileName)
	if err != nil {
		fatalf("%v", err)
	}
	tabs, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	provider, _, closeSettings := sf.openSettings(ctx)
	defer closeSettings()
	cfg, err := provider.Get(ctx)
	if err != nil {
		fatalf("%v", err)
	}

	store := sf.openStore()
	defer store.Close()

	// No browser is attached: sweeps never capture, close or notify.
	res, err := archiver.New(nil, store).Sweep(ctx, tabs, cfg, *dryRun)
	if err != nil {
		fatalf("%v", err)
	}

	now := time.Now()
	verb := "Archived"
	if *dryRun {
		verb = "Would archive"
	}
	fmt.Printf("%s %d of %d tabs from profile %s (idle > %s)\n", verb, len(res.Archived), res.Scanned, profile.Name, cfg.Threshold())
	for _, rec := range res.Archived {
		fmt.Printf("  %-8s  %s\n", export.RelativeTime(now.Add(-rec.IdleDuration), now), rec.URL)
	}
	if res.Failed > 0 {
		fatalf("%d tabs could not be saved", res.Failed)
	}

	if !*dryRun && !cfg.IsPro {
		r, err := archiver.NewRetention(store).Enforce(ctx, cfg)
		if err != nil {
			fatalf("retention: %v", err)
		}
		if r.ByAge+r.ByCount > 0 {
			fmt.Printf("Retention removed %d old tabs\n", r.ByAge+r.ByCount)
		}
	}
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fatalf("discovering Firefox profiles: %v", err)
	}
	if len(profiles) == 0 {
		fatalf("no Firefox profiles found")
	}

	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}
