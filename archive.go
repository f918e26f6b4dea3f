package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/export"
	"github.com/lotas/tabecho/internal/protocol"
	"github.com/lotas/tabecho/internal/server"
	"github.com/lotas/tabecho/internal/tui"
	"github.com/lotas/tabecho/internal/types"
)

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum records to show (0 = all)")
	offset := fs.Int("offset", 0, "Records to skip")
	domain := fs.String("domain", "", "Only records from this domain")
	project := fs.String("project", "", "Only records in this project")
	since := fs.Duration("since", 0, "Only records archived within this long ago (e.g. 24h)")
	until := fs.Duration("until", 0, "Only records archived at least this long ago")
	jsonFlag := fs.Bool("json", false, "Print records as JSON")
	sf := addStoreFlags(fs)
	fs.Parse(args)

	store := sf.openStore()
	defer store.Close()
	ctx := context.Background()

	var recs []types.ArchivedTab
	var err error
	switch {
	case *domain != "":
		recs, err = store.ByDomain(ctx, *domain)
	case *project != "":
		recs, err = store.ByProject(ctx, *project)
	case *since > 0 || *until > 0:
		start, end := archiveRange(time.Now(), *since, *until)
		recs, err = store.ByRange(ctx, start, end)
	default:
		recs, err = store.List(ctx, *limit, *offset)
	}
	if err != nil {
		fatalf("%v", err)
	}
	printRecords(os.Stdout, recs, *jsonFlag)
}

// archiveRange turns --since/--until ages into absolute bounds. A zero age
// leaves that side open.
func archiveRange(now time.Time, since, until time.Duration) (time.Time, time.Time) {
	start := time.UnixMilli(0)
	if since > 0 {
		start = now.Add(-since)
	}
	return start, now.Add(-until)
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "Print records as JSON")
	sf := addStoreFlags(fs)
	fs.Parse(reorderArgs(args))

	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fatalf("usage: tabecho search <query>")
	}

	store := sf.openStore()
	defer store.Close()
	recs, err := store.Search(context.Background(), query)
	if err != nil {
		fatalf("%v", err)
	}
	printRecords(os.Stdout, recs, *jsonFlag)
}

func runCount(args []string) {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	sf := addStoreFlags(fs)
	fs.Parse(args)

	store := sf.openStore()
	defer store.Close()
	n, err := store.Count(context.Background())
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(n)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	sf := addStoreFlags(fs)
	fs.Parse(args)

	store := sf.openStore()
	defer store.Close()
	recs, err := store.ExportAll(context.Background())
	if err != nil {
		fatalf("%v", err)
	}

	st := analyzer.ComputeStats(recs)
	fmt.Printf("Archived tabs:   %d\n", st.Total)
	if st.Total == 0 {
		return
	}
	now := time.Now()
	fmt.Printf("Domains:         %d\n", st.Domains)
	fmt.Printf("Projects:        %d\n", st.Projects)
	fmt.Printf("Tagged:          %d\n", st.Tagged)
	fmt.Printf("Screenshots:     %d\n", st.WithScreenshots)
	fmt.Printf("Newest:          %s\n", export.RelativeTime(st.Newest, now))
	fmt.Printf("Oldest:          %s\n", export.RelativeTime(st.Oldest, now))
	fmt.Printf("Total idle time: %s\n", st.TotalIdle.Round(time.Minute))
	fmt.Println("\nTop domains:")
	for _, d := range st.TopDomains {
		fmt.Printf("  %4d  %s\n", d.Count, d.Domain)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	markdown := fs.Bool("markdown", false, "Export as markdown instead of a JSON backup")
	compress := fs.Bool("compress", false, "lz4-compress the JSON backup")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	sf := addStoreFlags(fs)
	fs.Parse(args)

	store := sf.openStore()
	defer store.Close()
	recs, err := store.ExportAll(context.Background())
	if err != nil {
		fatalf("%v", err)
	}

	var out io.Writer = os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			fatalf("create %s: %v", *outFile, err)
		}
		defer f.Close()
		out = f
	}

	now := time.Now()
	if *markdown {
		_, err = io.WriteString(out, export.Markdown(recs, now))
	} else {
		err = export.WriteBackup(out, recs, now, *compress)
	}
	if err != nil {
		fatalf("write export: %v", err)
	}
	if *outFile != "" {
		fmt.Fprintf(os.Stderr, "Exported %d tabs to %s\n", len(recs), *outFile)
	}
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	sf := addStoreFlags(fs)
	fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		fatalf("usage: tabecho import <file>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}
	defer f.Close()
	recs, err := export.ReadBackup(f)
	if err != nil {
		fatalf("%v", err)
	}

	store := sf.openStore()
	defer store.Close()
	res, err := store.ImportMany(context.Background(), recs)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Imported %d tabs", res.Imported)
	if len(res.Duplicates) > 0 {
		fmt.Printf(", skipped %d already archived", len(res.Duplicates))
	}
	fmt.Println()
}

func runClear(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip confirmation")
	sf := addStoreFlags(fs)
	fs.Parse(args)

	store := sf.openStore()
	defer store.Close()
	ctx := context.Background()
	n, err := store.Count(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if !*yes && !confirm(fmt.Sprintf("Delete all %d archived tabs?", n)) {
		fmt.Println("Aborted.")
		return
	}
	if err := store.Clear(ctx); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Deleted %d tabs\n", n)
}

func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	port := fs.Int("port", getenvInt("TABECHO_PORT", server.DefaultPort), "Daemon port")
	fs.Parse(args)

	var resp protocol.ForceCheckResponse
	if err := server.NewClient(*port).Send(context.Background(), protocol.ForceCheckNow{}, &resp); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Checked %d tabs, archived %d\n", resp.TrackedTabs, resp.Archived)
}

func runBrowse(args []string) {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	sf := addStoreFlags(fs)
	fs.Parse(args)

	store := sf.openStore()
	defer store.Close()

	p := tea.NewProgram(tui.NewModel(store), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatalf("%v", err)
	}
}

func printRecords(w io.Writer, recs []types.ArchivedTab, asJSON bool) {
	if asJSON {
		data, err := json.MarshalIndent(protocol.FromArchivedList(recs), "", "  ")
		if err != nil {
			fatalf("%v", err)
		}
		w.Write(append(data, '\n'))
		return
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "No archived tabs.")
		return
	}

	now := time.Now()
	var b bytes.Buffer
	for _, rec := range recs {
		fmt.Fprintf(&b, "%s  %-8s  %s\n", rec.ID, export.RelativeTime(rec.Timestamp, now), rec.Title)
		fmt.Fprintf(&b, "    %s", rec.URL)
		if rec.Project != "" {
			fmt.Fprintf(&b, "  [%s]", rec.Project)
		}
		for _, tag := range rec.Tags {
			fmt.Fprintf(&b, " #%s", tag)
		}
		b.WriteByte('\n')
	}
	w.Write(b.Bytes())
}
