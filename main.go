package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/storage"
)

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "list":
		runList(args)
	case "search":
		runSearch(args)
	case "count":
		runCount(args)
	case "stats":
		runStats(args)
	case "export":
		runExport(args)
	case "import":
		runImport(args)
	case "clear":
		runClear(args)
	case "check":
		runCheck(args)
	case "sweep":
		runSweep(args)
	case "browse":
		runBrowse(args)
	case "settings":
		runSettings(args)
	case "profiles":
		runProfiles()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q. Run 'tabecho help'.\n", cmd)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`tabecho - idle tab archiver daemon

Usage:
  tabecho [serve]                                Run the daemon the extension connects to
    --port <n>             Listen port on 127.0.0.1 (env: TABECHO_PORT, default: 19292)
    --interval <d>         Idle check period (env: TABECHO_CHECK_INTERVAL, default: 1m)
    --settle <d>           Delay before a screenshot (env: TABECHO_SETTLE_DELAY, default: 250ms)
    --log-level <level>    debug, info, warn, error (env: TABECHO_LOG_LEVEL)
    --pretty               Also log to stderr

  tabecho list [--limit n] [--offset n] [--domain d] [--project p] [--since age] [--until age] [--json]
  tabecho search <query> [--json]              Search title, URL, domain, tags and project
  tabecho count                                Number of archived tabs
  tabecho stats                                Archive summary
  tabecho browse                               Browse the archive in the terminal

  tabecho export [--markdown] [--compress] [--out <file>]
  tabecho import <file>                        Import a backup; existing ids are skipped
  tabecho clear [--yes]                        Delete every archived tab

  tabecho check [--port n]                     Ask the running daemon to check for idle tabs now
  tabecho sweep [--profile <name>] [--dry-run] Archive idle tabs from a Firefox session file
  tabecho profiles                             List Firefox profiles

  tabecho settings                             Show settings
  tabecho settings set key=value ...           Update settings (excludedDomains is comma-separated)
  tabecho settings pro|free|reset              Switch tier or restore defaults

Common flags:
  --db <path>              Archive database (env: TABECHO_DB, default: ~/.local/share/tabecho/tabecho.db)
  --settings <path>        Settings file (env: TABECHO_SETTINGS, default: ~/.config/tabecho/settings.yaml)
  --redis <addr>           Keep settings in Redis instead (env: TABECHO_REDIS_ADDR)
`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fatalf("%s: %v", key, err)
	}
	return n
}

func mustDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fatalf("%s: %v", key, err)
	}
	return d
}

// storeFlags are the flags shared by every command that touches the archive.
type storeFlags struct {
	db       *string
	settings *string
	redis    *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		db:       fs.String("db", getenv("TABECHO_DB", ""), "Archive database path"),
		settings: fs.String("settings", getenv("TABECHO_SETTINGS", ""), "Settings file path"),
		redis:    fs.String("redis", getenv("TABECHO_REDIS_ADDR", ""), "Redis address for settings"),
	}
}

func (f storeFlags) openStore() *storage.Store {
	path := *f.db
	if path == "" {
		var err error
		path, err = storage.DefaultDBPath()
		if err != nil {
			fatalf("%v", err)
		}
	}
	store, err := storage.Open(path)
	if err != nil {
		fatalf("%v", err)
	}
	return store
}

// openSettings returns the settings provider. watch is nil unless the
// provider can follow external edits.
func (f storeFlags) openSettings(ctx context.Context) (p settings.Provider, watch func(context.Context) error, closeFn func()) {
	if *f.redis != "" {
		client, err := settings.ConnectRedis(ctx, settings.RedisOptions{
			Addr:     *f.redis,
			Password: os.Getenv("TABECHO_REDIS_PASSWORD"),
			DB:       getenvInt("TABECHO_REDIS_DB", 0),
		})
		if err != nil {
			fatalf("%v", err)
		}
		return settings.NewRedisProvider(client), nil, func() { client.Close() }
	}

	path := *f.settings
	if path == "" {
		path = settings.DefaultPath()
	}
	fp := settings.NewFileProvider(path)
	watch = func(ctx context.Context) error {
		return fp.Watch(ctx, func(s settings.Settings) {
			applog.Info("settings.reloaded", "threshold_min", s.IdleThreshold, "pro", s.IsPro,
				"auto_archive", s.AutoArchive)
		})
	}
	return fp, watch, func() {}
}

func logDir() string {
	dir, err := storage.DataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "logs")
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			if !strings.Contains(args[i], "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && !isBoolFlag(args[i]) {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

var boolFlags = map[string]bool{"json": true, "yes": true, "dry-run": true, "markdown": true, "compress": true, "pretty": true}

func isBoolFlag(arg string) bool {
	return boolFlags[strings.TrimLeft(arg, "-")]
}
