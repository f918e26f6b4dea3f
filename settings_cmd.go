package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lotas/tabecho/internal/settings"
	"gopkg.in/yaml.v3"
)

func runSettings(args []string) {
	fs := flag.NewFlagSet("settings", flag.ExitOnError)
	sf := addStoreFlags(fs)
	fs.Parse(reorderArgs(args))

	ctx := context.Background()
	provider, _, closeSettings := sf.openSettings(ctx)
	defer closeSettings()

	rest := fs.Args()
	sub := "show"
	if len(rest) > 0 {
		sub, rest = rest[0], rest[1:]
	}

	var err error
	switch sub {
	case "show":
	case "set":
		var patch settings.Patch
		patch, err = parsePatch(rest)
		if err == nil {
			err = provider.Update(ctx, patch)
		}
	case "pro":
		err = provider.Update(ctx, settings.ProPatch())
	case "free":
		err = provider.Update(ctx, settings.FreePatch())
	case "reset":
		err = settings.Reset(ctx, provider)
	default:
		fatalf("unknown settings command %q. Use show, set, pro, free or reset.", sub)
	}
	if err != nil {
		fatalf("%v", err)
	}

	s, err := provider.Get(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	s.LegacyDomains = nil
	out, err := yaml.Marshal(s)
	if err != nil {
		fatalf("%v", err)
	}
	os.Stdout.Write(out)
}

// parsePatch turns key=value arguments into a settings patch.
func parsePatch(pairs []string) (settings.Patch, error) {
	var p settings.Patch
	if len(pairs) == 0 {
		return p, fmt.Errorf("usage: tabecho settings set key=value ...")
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return p, fmt.Errorf("expected key=value, got %q", pair)
		}
		var err error
		switch key {
		case "idleThreshold":
			p.IdleThreshold, err = parseInt(value)
		case "retentionLimit":
			p.RetentionLimit, err = parseInt(value)
		case "retentionDays":
			p.RetentionDays, err = parseInt(value)
		case "enableScreenshots":
			p.EnableScreenshots, err = parseBool(value)
		case "isPro":
			p.IsPro, err = parseBool(value)
		case "autoArchive":
			p.AutoArchive, err = parseBool(value)
		case "autoCloseArchivedTabs":
			p.AutoCloseArchivedTabs, err = parseBool(value)
		case "excludedDomains", "domains":
			domains := []string{}
			for _, d := range strings.Split(value, ",") {
				if d = strings.TrimSpace(d); d != "" {
					domains = append(domains, d)
				}
			}
			p.ExcludedDomains = &domains
		default:
			return p, fmt.Errorf("unknown setting %q", key)
		}
		if err != nil {
			return p, fmt.Errorf("%s: %w", key, err)
		}
	}
	return p, nil
}

func parseInt(s string) (*int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseBool(s string) (*bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
