package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"example.com/evt3gate/internal/common"
	"example.com/evt3gate/internal/crypto"
	"example.com/evt3gate/internal/evt3"
	"example.com/evt3gate/internal/export"
	"example.com/evt3gate/internal/report"
	"example.com/evt3gate/internal/store"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var printer = message.NewPrinter(language.English)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "decode":
		decodeCmd(os.Args[2:])
	case "filter":
		filterCmd(os.Args[2:])
	case "print":
		printCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "store":
		storeCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "verify":
		verifyCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`evt3ctl %s (built %s) <command> [options]

Commands:
  decode  --in <file.raw> [--from t0] [--to tend] [--out <events.ndjson|events.csv>] [--summary <summary.json> [--sign-key <key.pem>]] [--sqlite <events.db>] [--chunk-words N] [--emit-before-time-base] [--metrics] [--progress]
  filter  --in <events.ndjson> [--from t0] [--to tend] --out <events.ndjson|events.csv>
  print   --in <file.raw> [--limit N]
  report  --summary <summary.json> --pdf <report.pdf> [--lang %s]
  store   --db <events.db> <list | query --id <recording> [--from t0] [--to tend] [--out <events.ndjson>]>
  batch   --in <dir> --out-dir <dir> [--sqlite <events.db>]
  verify  --summary <summary.json> [--jws <summary.json.jws>] --cert <cert.pem>
`, version, buildDate, strings.Join(report.Languages(), "|"))
}

// rangeFlags registers --from/--to. A flag left off the command line leaves
// its side of the window open.
type rangeFlags struct {
	fs   *flag.FlagSet
	from *uint64
	to   *uint64
}

func addRangeFlags(fs *flag.FlagSet) rangeFlags {
	return rangeFlags{
		fs:   fs,
		from: fs.Uint64("from", 0, "exclusive lower timestamp bound (us); open when omitted"),
		to:   fs.Uint64("to", 0, "exclusive upper timestamp bound (us); open when omitted"),
	}
}

func (r rangeFlags) window() evt3.Window {
	w := evt3.Window{From: *r.from, To: *r.to}
	r.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "from":
			w.HasFrom = true
		case "to":
			w.HasTo = true
		}
	})
	return w
}

func windowLabel(w evt3.Window) string {
	lo, hi := "-inf", "+inf"
	if w.HasFrom {
		lo = strconv.FormatUint(w.From, 10)
	}
	if w.HasTo {
		hi = strconv.FormatUint(w.To, 10)
	}
	return "(" + lo + ", " + hi + ")"
}

func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input EVT3 .raw recording")
	window := addRangeFlags(fs)
	out := fs.String("out", "", "events output (.ndjson or .csv)")
	summaryOut := fs.String("summary", "", "summary JSON output")
	signKey := fs.String("sign-key", "", "RSA private key used to sign the summary (<summary>.jws)")
	sqlitePath := fs.String("sqlite", "", "store decoded events in this SQLite database")
	name := fs.String("name", "", "recording name used in the store and summary")
	chunkWords := fs.Int("chunk-words", evt3.DefaultChunkWords, "words decoded per read")
	emitBefore := fs.Bool("emit-before-time-base", false, "keep events that precede the first TIME_HIGH (timestamp 0)")
	bins := fs.Int("bins", report.DefaultBins, "histogram bins in the summary")
	metricsFlag := fs.Bool("metrics", false, "print decode throughput metrics")
	progressFlag := fs.Bool("progress", false, "display decode progress updates")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	if *signKey != "" && *summaryOut == "" {
		fmt.Println("--sign-key requires --summary")
		os.Exit(1)
	}

	metrics := common.NewMetrics()
	metrics.Start()
	var stopProgress func()
	if *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	rec, err := evt3.DecodeFile(*in, evt3.Options{ChunkWords: *chunkWords, EmitBeforeTimeBase: *emitBefore}, metrics)
	if stopProgress != nil {
		stopProgress()
	}
	metrics.Stop()
	if err != nil {
		fmt.Println("decode:", err)
		os.Exit(1)
	}
	printRecording(os.Stdout, rec)

	if *summaryOut != "" {
		sum := report.BuildSummary(rec, *bins)
		if *name != "" {
			sum.Name = *name
		}
		if err := sum.AttachDigest(*in); err != nil {
			fmt.Println("digest:", err)
			os.Exit(1)
		}
		if err := report.SaveSummaryJSON(sum, *summaryOut); err != nil {
			fmt.Println("write summary:", err)
			os.Exit(1)
		}
		if *signKey != "" {
			if err := crypto.SignFile(*summaryOut, *signKey, *summaryOut+".jws"); err != nil {
				fmt.Println("sign summary:", err)
				os.Exit(1)
			}
			fmt.Println("Signed", *summaryOut+".jws")
		}
	}
	if *sqlitePath != "" {
		info, err := saveToStore(*sqlitePath, *name, rec)
		if err != nil {
			fmt.Println("store:", err)
			os.Exit(1)
		}
		fmt.Printf("Stored recording %s in %s\n", info.ID, *sqlitePath)
	}

	win := window.window()
	events, err := win.Filter(rec.Events)
	if err != nil {
		fmt.Println("filter:", err)
		os.Exit(1)
	}
	if win.Set() {
		printer.Printf("Filtered: %d of %d events in %s\n", len(events), len(rec.Events), windowLabel(win))
	}
	if *out != "" {
		if err := export.Save(*out, events); err != nil {
			fmt.Println("write events:", err)
			os.Exit(1)
		}
	}
	if *metricsFlag {
		snap := metrics.Snapshot()
		printer.Printf("Metrics: duration=%s chunks=%d words=%d events=%d processed=%s throughput=%.2f MB/s (%.0f events/s)\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Chunks,
			snap.Words,
			snap.Events,
			common.FormatBytes(snap.Bytes),
			snap.ThroughputBytesPerSecond()/1_000_000,
			snap.EventsPerSecond(),
		)
	}
}

func printRecording(w io.Writer, rec evt3.Recording) {
	meta := rec.Metadata
	printer.Fprintf(w, "Geometry: %dx%d\n", meta.Width, meta.Height)
	if meta.Empty() {
		fmt.Fprintln(w, "Time range: no events")
	} else {
		printer.Fprintf(w, "Time range: %d - %d us (span %d us)\n", meta.MinTime, meta.MaxTime, meta.Span())
	}
	st := rec.Stats
	printer.Fprintf(w, "Events: %d (words=%d, time loops=%d, ext triggers=%d, unknown=%d)\n",
		len(rec.Events), st.Words, st.TimeLoops, st.ExtTriggers, st.Unknown)
	fmt.Fprintf(w, "Decoded in %.3f s\n", st.Duration.Seconds())
}

func saveToStore(path, name string, rec evt3.Recording) (store.RecordingInfo, error) {
	st, err := store.Open(path)
	if err != nil {
		return store.RecordingInfo{}, err
	}
	defer st.Close()
	return st.SaveRecording(context.Background(), name, rec)
}

func filterCmd(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	in := fs.String("in", "", "events NDJSON input")
	window := addRangeFlags(fs)
	out := fs.String("out", "", "events output (.ndjson or .csv)")
	fs.Parse(args)

	if *in == "" || *out == "" {
		fmt.Println("required: --in, --out")
		os.Exit(1)
	}
	win := window.window()
	if !win.Set() {
		fmt.Println("required: --from and/or --to")
		os.Exit(1)
	}
	events, err := export.Load(*in)
	if err != nil {
		fmt.Println("load events:", err)
		os.Exit(1)
	}
	filtered, err := win.Filter(events)
	if err != nil {
		fmt.Println("filter:", err)
		os.Exit(1)
	}
	if err := export.Save(*out, filtered); err != nil {
		fmt.Println("write events:", err)
		os.Exit(1)
	}
	printer.Printf("Kept %d of %d events\n", len(filtered), len(events))
}

func printCmd(args []string) {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	in := fs.String("in", "", "input EVT3 .raw recording")
	limit := fs.Int("limit", 0, "stop after this many events (0 = all)")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	rd, err := evt3.Open(*in, evt3.Options{})
	if err != nil {
		fmt.Println("open:", err)
		os.Exit(1)
	}
	defer rd.Close()
	if err := printEvents(os.Stdout, rd, *limit); err != nil {
		fmt.Println("decode:", err)
		os.Exit(1)
	}
}

func printEvents(w io.Writer, rd *evt3.Reader, limit int) error {
	printed := 0
	for {
		chunk, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, ev := range chunk {
			if limit > 0 && printed >= limit {
				return nil
			}
			fmt.Fprintf(w, "Timestamp: %d, x: %d, y: %d, polarity: %d\n", ev.Timestamp, ev.X, ev.Y, ev.Polarity)
			printed++
		}
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	summaryPath := fs.String("summary", "summary.json", "summary JSON produced by decode")
	pdfOut := fs.String("pdf", "report.pdf", "PDF output")
	lang := fs.String("lang", "en", "report language ("+strings.Join(report.Languages(), ", ")+")")
	noHistogram := fs.Bool("no-histogram", false, "omit the event-rate chart")
	fs.Parse(args)

	reportLang, err := report.ParseLanguage(*lang)
	if err != nil {
		fmt.Println("language:", err)
		os.Exit(1)
	}
	sum, err := report.LoadSummaryJSON(*summaryPath)
	if err != nil {
		fmt.Println("load summary:", err)
		os.Exit(1)
	}
	if err := report.SaveSummaryPDF(sum, *pdfOut, report.PDFOptions{Language: reportLang, SkipHistogram: *noHistogram}); err != nil {
		fmt.Println("write pdf:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote", *pdfOut)
}

func storeCmd(args []string) {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	dbPath := fs.String("db", "events.db", "SQLite event store")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) == 0 {
		storeUsage()
		os.Exit(1)
	}
	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Println("open store:", err)
		os.Exit(1)
	}
	defer st.Close()
	switch rest[0] {
	case "list":
		if err := storeList(os.Stdout, st); err != nil {
			fmt.Println("list recordings:", err)
			os.Exit(1)
		}
	case "query":
		storeQueryCmd(st, rest[1:])
	default:
		fmt.Println("unknown store subcommand")
		storeUsage()
		os.Exit(1)
	}
}

func storeUsage() {
	fmt.Println("store commands:")
	fmt.Println("  list")
	fmt.Println("  query --id <recording> [--from t0] [--to tend] [--out <events.ndjson|events.csv>]")
}

func storeList(w io.Writer, st *store.Store) error {
	list, err := st.ListRecordings(context.Background())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No recordings stored")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGEOMETRY\tEVENTS\tMIN T\tMAX T\tCREATED")
	for _, info := range list {
		minT, maxT := "-", "-"
		if !info.Metadata.Empty() {
			minT = printer.Sprintf("%d", info.Metadata.MinTime)
			maxT = printer.Sprintf("%d", info.Metadata.MaxTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\t%s\t%s\t%s\n",
			info.ID,
			info.Name,
			info.Metadata.Width, info.Metadata.Height,
			printer.Sprintf("%d", info.Events),
			minT, maxT,
			info.CreatedAt.Format(time.RFC3339),
		)
	}
	return tw.Flush()
}

func storeQueryCmd(st *store.Store, args []string) {
	fs := flag.NewFlagSet("store query", flag.ExitOnError)
	id := fs.String("id", "", "recording ID")
	window := addRangeFlags(fs)
	out := fs.String("out", "", "events output (.ndjson or .csv); prints events when empty")
	fs.Parse(args)

	if *id == "" {
		fmt.Println("required: --id")
		os.Exit(1)
	}
	events, err := st.EventsInWindow(context.Background(), *id, window.window())
	if err != nil {
		fmt.Println("query:", err)
		os.Exit(1)
	}
	if *out == "" {
		for _, ev := range events {
			fmt.Printf("Timestamp: %d, x: %d, y: %d, polarity: %d\n", ev.Timestamp, ev.X, ev.Y, ev.Polarity)
		}
		return
	}
	if err := export.Save(*out, events); err != nil {
		fmt.Println("write events:", err)
		os.Exit(1)
	}
	printer.Printf("Wrote %d events to %s\n", len(events), *out)
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	summaryPath := fs.String("summary", "summary.json", "summary JSON to verify")
	sigPath := fs.String("jws", "", "detached signature (default <summary>.jws)")
	certPath := fs.String("cert", "", "PEM certificate or public key")
	fs.Parse(args)

	if *certPath == "" {
		fmt.Println("required: --cert")
		os.Exit(1)
	}
	if *sigPath == "" {
		*sigPath = *summaryPath + ".jws"
	}
	if err := crypto.VerifyFile(*summaryPath, *sigPath, *certPath); err != nil {
		fmt.Println("verify:", err)
		os.Exit(1)
	}
	fmt.Println("Signature OK:", *summaryPath)
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	outDir := fs.String("out-dir", "out", "results directory")
	sqlitePath := fs.String("sqlite", "", "also store every recording in this SQLite database")
	chunkWords := fs.Int("chunk-words", evt3.DefaultChunkWords, "words decoded per read")
	fs.Parse(args)

	inputs, err := findRecordings(*inDir)
	if err != nil {
		fmt.Println("scan inputs:", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		fmt.Println("no .raw recordings found in", *inDir)
		return
	}
	var st *store.Store
	if *sqlitePath != "" {
		st, err = store.Open(*sqlitePath)
		if err != nil {
			fmt.Println("open store:", err)
			os.Exit(1)
		}
		defer st.Close()
	}
	runs := common.NewRunLog(filepath.Join(*outDir, "runs.jsonl"))
	failed := 0
	for _, in := range inputs {
		name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		sum, err := batchOne(in, filepath.Join(*outDir, name), *chunkWords, st)
		entry := common.RunEntry{
			Source:   in,
			Digest:   sum.Digest,
			Events:   sum.Stats.Events,
			Words:    sum.Stats.Words,
			Duration: sum.Stats.Duration.Seconds(),
		}
		if err != nil {
			common.Logf("batch %s: %v", in, err)
			entry.Status, entry.Error = common.RunFailed, err.Error()
			failed++
		} else {
			fmt.Printf("%s: ok\n", in)
		}
		if err := runs.Append(entry); err != nil {
			common.Logf("run log: %v", err)
		}
	}
	printer.Printf("Processed %d recordings, %d failed\n", len(inputs), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func batchOne(in, outDir string, chunkWords int, st *store.Store) (report.Summary, error) {
	var sum report.Summary
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return sum, err
	}
	rec, err := evt3.DecodeFile(in, evt3.Options{ChunkWords: chunkWords}, nil)
	if err != nil {
		return sum, err
	}
	sum = report.BuildSummary(rec, 0)
	if err := sum.AttachDigest(in); err != nil {
		return sum, err
	}
	if err := export.Save(filepath.Join(outDir, "events.ndjson"), rec.Events); err != nil {
		return sum, err
	}
	if err := report.SaveSummaryJSON(sum, filepath.Join(outDir, "summary.json")); err != nil {
		return sum, err
	}
	if st != nil {
		if _, err := st.SaveRecording(context.Background(), filepath.Base(in), rec); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func findRecordings(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".raw") {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
