package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/evt3gate/internal/common"
	"example.com/evt3gate/internal/crypto"
	"example.com/evt3gate/internal/evt3"
	"example.com/evt3gate/internal/export"
	"example.com/evt3gate/internal/report"
	"example.com/evt3gate/internal/store"
)

func writeSyntheticRecording(t *testing.T, path string) {
	t.Helper()
	words := []evt3.Word{
		evt3.MakeWord(evt3.TypeTimeHigh, 1),
		evt3.MakeWord(evt3.TypeTimeLow, 10),
		evt3.MakeWord(evt3.TypeAddrY, 3),
		evt3.MakeWord(evt3.TypeAddrX, 1<<11|5),
		evt3.MakeWord(evt3.TypeVectBaseX, 20),
		evt3.MakeWord(evt3.TypeVect8, 0b11),
		evt3.MakeWord(evt3.TypeTimeLow, 20),
		evt3.MakeWord(evt3.TypeAddrX, 7),
	}
	var buf bytes.Buffer
	buf.WriteString("% format EVT3;\n% geometry 64x32\n% end\n")
	for _, w := range words {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(w))
		buf.Write(b[:])
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDecodeCmdWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cam.raw")
	writeSyntheticRecording(t, in)
	eventsOut := filepath.Join(dir, "events.ndjson")
	summaryOut := filepath.Join(dir, "summary.json")
	dbPath := filepath.Join(dir, "events.db")

	decodeCmd([]string{
		"--in", in,
		"--from", "4100",
		"--to", "4110",
		"--out", eventsOut,
		"--summary", summaryOut,
		"--sqlite", dbPath,
		"--name", "bench",
		"--chunk-words", "3",
	})

	events, err := export.Load(eventsOut)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 filtered events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Timestamp != 4106 {
			t.Fatalf("unexpected event %+v", ev)
		}
	}

	sum, err := report.LoadSummaryJSON(summaryOut)
	if err != nil {
		t.Fatalf("LoadSummaryJSON: %v", err)
	}
	if sum.Name != "bench" || sum.Stats.Events != 4 || sum.Digest == "" {
		t.Fatalf("unexpected summary: name=%q events=%d digest=%q", sum.Name, sum.Stats.Events, sum.Digest)
	}
	if sum.Metadata.Width != 64 || sum.Metadata.Height != 32 {
		t.Fatalf("summary geometry = %dx%d", sum.Metadata.Width, sum.Metadata.Height)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	list, err := st.ListRecordings(context.Background())
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if len(list) != 1 || list[0].Name != "bench" || list[0].Events != 4 {
		t.Fatalf("unexpected stored recordings: %+v", list)
	}

	var out bytes.Buffer
	if err := storeList(&out, st); err != nil {
		t.Fatalf("storeList: %v", err)
	}
	if !strings.Contains(out.String(), "bench") || !strings.Contains(out.String(), "64x32") {
		t.Fatalf("unexpected listing:\n%s", out.String())
	}
}

func TestFilterCmdCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "events.ndjson")
	all := []evt3.Event{
		{Timestamp: 1, X: 1},
		{Timestamp: 5, X: 2},
		{Timestamp: 9, X: 3},
	}
	if err := export.Save(in, all); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out := filepath.Join(dir, "kept.csv")
	filterCmd([]string{"--in", in, "--from", "1", "--to", "9", "--out", out})

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "t,x,y,p\n5,2,0,0\n"
	if string(data) != want {
		t.Fatalf("csv = %q, want %q", data, want)
	}
}

func TestFilterCmdUpperBoundOnly(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "events.ndjson")
	all := []evt3.Event{
		{Timestamp: 0, X: 10, Y: 5, Polarity: 1},
		{Timestamp: 0, X: 12, Y: 5, Polarity: 1},
		{Timestamp: 4146, X: 7, Y: 3},
		{Timestamp: 9000, X: 8, Y: 3},
	}
	if err := export.Save(in, all); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out := filepath.Join(dir, "kept.ndjson")
	filterCmd([]string{"--in", in, "--to", "5000", "--out", out})

	kept, err := export.Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(kept) != 3 || kept[0].Timestamp != 0 || kept[2].Timestamp != 4146 {
		t.Fatalf("unexpected events kept: %+v", kept)
	}
}

func TestRangeFlagsWindow(t *testing.T) {
	tests := []struct {
		args []string
		want evt3.Window
	}{
		{args: nil, want: evt3.Window{}},
		{args: []string{"--to", "50"}, want: evt3.Window{To: 50, HasTo: true}},
		{args: []string{"--from", "0"}, want: evt3.Window{From: 0, HasFrom: true}},
		{args: []string{"--from", "1", "--to", "9"}, want: evt3.Window{From: 1, To: 9, HasFrom: true, HasTo: true}},
	}
	for _, tc := range tests {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		r := addRangeFlags(fs)
		if err := fs.Parse(tc.args); err != nil {
			t.Fatalf("Parse %v: %v", tc.args, err)
		}
		if got := r.window(); got != tc.want {
			t.Fatalf("args %v: window = %+v, want %+v", tc.args, got, tc.want)
		}
	}
	if got := windowLabel(evt3.Window{To: 50, HasTo: true}); got != "(-inf, 50)" {
		t.Fatalf("label = %q", got)
	}
}

func TestPrintEventsLimit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cam.raw")
	writeSyntheticRecording(t, in)
	rd, err := evt3.Open(in, evt3.Options{ChunkWords: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rd.Close()

	var out bytes.Buffer
	if err := printEvents(&out, rd, 2); err != nil {
		t.Fatalf("printEvents: %v", err)
	}
	want := "Timestamp: 4106, x: 5, y: 3, polarity: 1\n" +
		"Timestamp: 4106, x: 20, y: 3, polarity: 0\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestBatchCmdGeneratesOutputs(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "inputs")
	nested := filepath.Join(inputDir, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeSyntheticRecording(t, filepath.Join(inputDir, "alpha.raw"))
	writeSyntheticRecording(t, filepath.Join(nested, "beta.RAW"))
	if err := os.WriteFile(filepath.Join(inputDir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	outDir := filepath.Join(root, "out")
	dbPath := filepath.Join(root, "batch.db")

	batchCmd([]string{"--in", inputDir, "--out-dir", outDir, "--sqlite", dbPath})

	for _, name := range []string{"alpha", "beta"} {
		events, err := export.Load(filepath.Join(outDir, name, "events.ndjson"))
		if err != nil {
			t.Fatalf("Load %s: %v", name, err)
		}
		if len(events) != 4 {
			t.Fatalf("%s: expected 4 events, got %d", name, len(events))
		}
		sum, err := report.LoadSummaryJSON(filepath.Join(outDir, name, "summary.json"))
		if err != nil {
			t.Fatalf("LoadSummaryJSON %s: %v", name, err)
		}
		if len(sum.Bins) != report.DefaultBins {
			t.Fatalf("%s: bins = %d, want %d", name, len(sum.Bins), report.DefaultBins)
		}
	}

	runs, err := common.ReadRunLog(filepath.Join(outDir, "runs.jsonl"))
	if err != nil {
		t.Fatalf("ReadRunLog: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 run entries, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Status != common.RunOK || run.Events != 4 || len(run.Digest) != 64 {
			t.Fatalf("unexpected run entry: %+v", run)
		}
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	list, err := st.ListRecordings(context.Background())
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 stored recordings, got %d", len(list))
	}
}

func TestFindRecordingsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.raw", "a.raw", "c.dat"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	got, err := findRecordings(dir)
	if err != nil {
		t.Fatalf("findRecordings: %v", err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "a.raw" || filepath.Base(got[1]) != "b.raw" {
		t.Fatalf("unexpected recordings: %v", got)
	}
}

func TestDecodeCmdSignsSummary(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cam.raw")
	writeSyntheticRecording(t, in)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600); err != nil {
		t.Fatalf("WriteFile key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pubPath := filepath.Join(dir, "pub.pem")
	if err := os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644); err != nil {
		t.Fatalf("WriteFile pub: %v", err)
	}

	summaryOut := filepath.Join(dir, "summary.json")
	decodeCmd([]string{"--in", in, "--summary", summaryOut, "--sign-key", keyPath})

	if _, err := os.Stat(summaryOut + ".jws"); err != nil {
		t.Fatalf("signature missing: %v", err)
	}
	if err := crypto.VerifyFile(summaryOut, summaryOut+".jws", pubPath); err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	verifyCmd([]string{"--summary", summaryOut, "--cert", pubPath})
}
