package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/export"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/s3fetch"
	"github.com/eunmann/ibu/pkg/s3fetch/s3test"
	"github.com/eunmann/ibu/pkg/stream"
	"github.com/eunmann/ibu/pkg/tabular"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v2"
)

// execute runs the CLI against a fresh app and returns what it printed.
func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	if a.stdin == nil {
		a.stdin = bytes.NewReader(nil)
	}
	var out bytes.Buffer
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, &app{}, args...)
	if err != nil {
		t.Fatalf("ibu %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// writeFile writes recs under h to an uncompressed file.
func writeFile(t *testing.T, path string, h format.Header, recs []format.Record) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := stream.NewWriter(f, h, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBatch(recs); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func loadFile(t *testing.T, path string) (format.Header, []format.Record) {
	t.Helper()
	h, recs, err := stream.LoadAll(path)
	if err != nil {
		t.Fatalf("LoadAll(%s): %v", path, err)
	}
	return h, recs
}

// statsField extracts one "key value" line from stats output.
func statsField(t *testing.T, out, key string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == key {
			return fields[1]
		}
	}
	t.Fatalf("stats output has no %q line:\n%s", key, out)
	return ""
}

func TestRunNoArgsPrintsHelp(t *testing.T) {
	out, err := execute(t, &app{})
	if err != nil {
		t.Fatalf("expected help, got error: %v", err)
	}
	if !strings.Contains(out, "Available Commands") {
		t.Errorf("expected command list in help output, got: %s", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	_, err := execute(t, &app{}, "bogus")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestRunInvalidCompressFlag(t *testing.T) {
	_, err := execute(t, &app{}, "--compress", "brotli", "generate", "-n", "1")
	if !errors.Is(err, compress.ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got: %v", err)
	}
}

func TestGenerate_InvalidLengths(t *testing.T) {
	_, err := execute(t, &app{}, "generate", "-n", "1", "--bc-len", "33")
	if !errors.Is(err, format.ErrInvalidBarcodeLength) {
		t.Errorf("expected ErrInvalidBarcodeLength, got: %v", err)
	}
	_, err = execute(t, &app{}, "generate", "-n", "1", "--umi-len", "0")
	if !errors.Is(err, format.ErrInvalidUMILength) {
		t.Errorf("expected ErrInvalidUMILength, got: %v", err)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ibu")
	b := filepath.Join(dir, "b.ibu")
	mustExecute(t, "generate", "-n", "5000", "-w", "3", "--seed", "9", "-o", a)
	mustExecute(t, "generate", "-n", "5000", "-w", "3", "--seed", "9", "-o", b)

	ha, ra := loadFile(t, a)
	_, rb := loadFile(t, b)
	if len(ra) != 5000 {
		t.Fatalf("generated %d records, want 5000", len(ra))
	}
	if ha.BarcodeLen != 16 || ha.UMILen != 12 || ha.Sorted() {
		t.Errorf("unexpected header %+v", ha)
	}
	if !slices.Equal(ra, rb) {
		t.Error("same seed and worker count produced different files")
	}

	mask := uint64(1)<<(2*12) - 1
	for i, r := range ra {
		if r.UMI&^mask != 0 {
			t.Fatalf("record %d: UMI %#x exceeds 12 bases", i, r.UMI)
		}
	}
}

func TestGenerate_ToStdout(t *testing.T) {
	out := mustExecute(t, "generate", "-n", "10", "--bc-len", "8", "--umi-len", "6")
	r, err := stream.NewReader(strings.NewReader(out), nil)
	if err != nil {
		t.Fatal(err)
	}
	if h := r.Header(); h.BarcodeLen != 8 || h.UMILen != 6 {
		t.Errorf("header = %+v, want bc_len=8 umi_len=6", h)
	}
	recs, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 10 {
		t.Errorf("got %d records, want 10", len(recs))
	}
}

func TestGenerateSortedAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sorted.ibu")
	mustExecute(t, "generate", "-n", "20000", "--sorted", "--barcodes", "50", "-o", path)

	out := mustExecute(t, "--threads", "4", "--batch-size", "1000", "stats", path)
	checks := map[string]string{
		"records":           "20000",
		"sorted_flag":       "true",
		"is_sorted":         "true",
		"bc_len":            "16",
		"umi_len":           "12",
		"distinct_barcodes": "50",
	}
	for key, want := range checks {
		if got := statsField(t, out, key); got != want {
			t.Errorf("%s = %s, want %s", key, got, want)
		}
	}
}

func TestStats_DetectsUnsortedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lying.ibu")
	h := format.NewHeader(16, 12)
	h.SetSorted(true)
	recs := []format.Record{
		{Barcode: 1, Index: 7}, {Barcode: 2, Index: 3}, {Barcode: 0, Index: 1},
		{Barcode: 3, Index: 9}, {Barcode: 4, Index: 5}, {Barcode: 5, Index: 2},
	}
	writeFile(t, path, h, recs)

	// With three workers each range is sorted; the inversion sits between
	// the first two.
	out := mustExecute(t, "--threads", "3", "stats", path)
	if got := statsField(t, out, "is_sorted"); got != "false" {
		t.Errorf("is_sorted = %s, want false", got)
	}
	if got := statsField(t, out, "sorted_flag"); got != "true" {
		t.Errorf("sorted_flag = %s, want true", got)
	}
	if got := statsField(t, out, "min_index"); got != "1" {
		t.Errorf("min_index = %s, want 1", got)
	}
	if got := statsField(t, out, "max_index"); got != "9" {
		t.Errorf("max_index = %s, want 9", got)
	}
}

func TestStats_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ibu")
	writeFile(t, path, format.NewHeader(16, 12), nil)

	out := mustExecute(t, "stats", path)
	if got := statsField(t, out, "records"); got != "0" {
		t.Errorf("records = %s, want 0", got)
	}
	if strings.Contains(out, "min_index") {
		t.Errorf("empty file should not report an index range:\n%s", out)
	}
}

func TestStats_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.ibu")
	writeFile(t, path, format.NewHeader(2, 2), []format.Record{{Barcode: 1, Index: 4}, {Barcode: 1, Index: 2}})

	out := mustExecute(t, "stats", "--yaml", path)
	var got statsReport
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("stats --yaml is not YAML: %v\n%s", err, out)
	}
	if got.Records != 2 || got.Bytes != format.HeaderSize+2*format.RecordSize {
		t.Errorf("records=%d bytes=%d", got.Records, got.Bytes)
	}
	if got.DistinctBarcodes != 1 || got.IsSorted {
		t.Errorf("distinct_barcodes=%d is_sorted=%t", got.DistinctBarcodes, got.IsSorted)
	}
	if got.MinIndex == nil || *got.MinIndex != 2 || got.MaxIndex == nil || *got.MaxIndex != 4 {
		t.Errorf("index range = %v..%v", got.MinIndex, got.MaxIndex)
	}
}

func TestView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.ibu")
	recs := []format.Record{
		{Barcode: 0b0001, UMI: 0b1110, Index: 5},
		{Barcode: 0b1111, UMI: 0b0000, Index: 6},
	}
	writeFile(t, path, format.NewHeader(2, 2), recs)

	if got, want := mustExecute(t, "view", path), "1\t14\t5\n15\t0\t6\n"; got != want {
		t.Errorf("view = %q, want %q", got, want)
	}
	if got, want := mustExecute(t, "view", "--seq", "-n", "1", path), "AC\tTG\t5\n"; got != want {
		t.Errorf("view --seq = %q, want %q", got, want)
	}

	out := mustExecute(t, "view", "--header", path)
	if !strings.HasPrefix(out, "# version=2 bc_len=2 umi_len=2 sorted=false\n") {
		t.Errorf("missing header line: %q", out)
	}
}

func TestView_FromStdin(t *testing.T) {
	var buf bytes.Buffer
	w, err := stream.NewWriter(&buf, format.NewHeader(16, 12), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRecord(format.Record{Barcode: 1, UMI: 2, Index: 3}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, &app{stdin: &buf}, "view")
	if err != nil {
		t.Fatal(err)
	}
	if out != "1\t2\t3\n" {
		t.Errorf("view from stdin = %q", out)
	}
}

func TestView_TruncatedInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cut.ibu")
	writeFile(t, path, format.NewHeader(16, 12), []format.Record{{Barcode: 1}, {Barcode: 2}})
	if err := os.Truncate(path, format.HeaderSize+format.RecordSize+10); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, &app{}, "view", path)
	if !errors.Is(err, format.ErrTruncatedRecord) {
		t.Errorf("expected ErrTruncatedRecord, got: %v", err)
	}
}

func TestSort(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ibu.gz")
	out := filepath.Join(dir, "out.ibu")
	mustExecute(t, "generate", "-n", "3000", "-o", in)
	mustExecute(t, "sort", in, "-o", out)

	h, got := loadFile(t, out)
	if !h.Sorted() {
		t.Error("sorted flag not set")
	}
	if !format.IsSorted(got) {
		t.Error("records not sorted")
	}

	plain := filepath.Join(dir, "plain.ibu")
	mustExecute(t, "generate", "-n", "3000", "-o", plain)
	_, want := loadFile(t, plain)
	slices.SortFunc(want, format.Compare)
	if !slices.Equal(got, want) {
		t.Error("sorted output is not a permutation of the input")
	}
}

func TestCat(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ibu")
	b := filepath.Join(dir, "b.ibu.zst")
	out := filepath.Join(dir, "out.ibu")

	h := format.NewHeader(16, 12)
	h.SetSorted(true)
	writeFile(t, a, h, []format.Record{{Barcode: 1}, {Barcode: 2}})
	mustExecute(t, "generate", "-n", "100", "-o", b)

	mustExecute(t, "cat", a, b, "-o", out)
	gotH, got := loadFile(t, out)
	if gotH.Sorted() {
		t.Error("concatenation of several inputs must not keep the sorted flag")
	}
	if len(got) != 102 {
		t.Fatalf("got %d records, want 102", len(got))
	}
	if got[0].Barcode != 1 || got[1].Barcode != 2 {
		t.Errorf("first input not copied first: %+v", got[:2])
	}

	single := filepath.Join(dir, "single.ibu")
	mustExecute(t, "cat", a, "-o", single)
	if h, _ := loadFile(t, single); !h.Sorted() {
		t.Error("single sorted input should keep the sorted flag")
	}
}

func TestCat_HeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ibu")
	b := filepath.Join(dir, "b.ibu")
	writeFile(t, a, format.NewHeader(16, 12), []format.Record{{Barcode: 1}})
	writeFile(t, b, format.NewHeader(16, 10), []format.Record{{Barcode: 2}})

	_, err := execute(t, &app{}, "cat", a, b, "-o", filepath.Join(dir, "out.ibu"))
	if !errors.Is(err, ErrHeaderMismatch) {
		t.Errorf("expected ErrHeaderMismatch, got: %v", err)
	}
}

func TestCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counts.ibu")
	idxPath := filepath.Join(dir, "barcodes.idx")
	writeFile(t, path, format.NewHeader(2, 2), []format.Record{
		{Barcode: 3}, {Barcode: 1}, {Barcode: 3}, {Barcode: 2}, {Barcode: 1}, {Barcode: 3},
	})

	want := "1\t2\n2\t1\n3\t3\n"
	if got := mustExecute(t, "--threads", "2", "count", path); got != want {
		t.Errorf("count = %q, want %q", got, want)
	}
	if got := mustExecute(t, "count", path, "--index", idxPath); got != want {
		t.Errorf("count building an index = %q, want %q", got, want)
	}
	if _, err := os.Stat(idxPath); err != nil {
		t.Fatalf("index not saved: %v", err)
	}
	if got := mustExecute(t, "count", path, "--index", idxPath); got != want {
		t.Errorf("count with saved index = %q, want %q", got, want)
	}
	if got, want := mustExecute(t, "count", path, "--min-count", "2", "--seq"), "AC\t2\nAT\t3\n"; got != want {
		t.Errorf("count --min-count 2 --seq = %q, want %q", got, want)
	}
}

func TestCount_Summary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.ibu")
	writeFile(t, path, format.NewHeader(2, 2), []format.Record{
		{Barcode: 3}, {Barcode: 1}, {Barcode: 3}, {Barcode: 2}, {Barcode: 1}, {Barcode: 3},
	})

	out := mustExecute(t, "count", path, "--summary")
	checks := map[string]string{
		"barcodes": "3",
		"records":  "6",
		"mean":     "2.00",
		"stddev":   "1.00",
		"min":      "1",
		"median":   "2",
		"p90":      "3",
		"max":      "3",
	}
	for key, want := range checks {
		if got := statsField(t, out, key); got != want {
			t.Errorf("%s = %s, want %s", key, got, want)
		}
	}

	out = mustExecute(t, "count", path, "--summary", "--min-count", "4")
	if got := statsField(t, out, "barcodes"); got != "0" {
		t.Errorf("barcodes = %s, want 0", got)
	}
	if strings.Contains(out, "mean") {
		t.Errorf("empty summary should stop after the totals:\n%s", out)
	}
}

func TestCount_UnknownBarcodeInSavedIndex(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.ibu")
	big := filepath.Join(dir, "big.ibu")
	idxPath := filepath.Join(dir, "small.idx")
	writeFile(t, small, format.NewHeader(2, 2), []format.Record{{Barcode: 1}})
	writeFile(t, big, format.NewHeader(2, 2), []format.Record{{Barcode: 1}, {Barcode: 2}})

	mustExecute(t, "count", small, "--index", idxPath)
	_, err := execute(t, &app{}, "count", big, "--index", idxPath)
	if !errors.Is(err, format.ErrProcess) {
		t.Errorf("expected ErrProcess, got: %v", err)
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ibu")
	out := filepath.Join(dir, "out.parquet")
	recs := []format.Record{{Barcode: 0b0001, UMI: 0b1110, Index: 5}, {Barcode: 2, UMI: 3, Index: 4}}
	writeFile(t, in, format.NewHeader(2, 2), recs)

	mustExecute(t, "export", in, "-o", out, "--seq")

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := parquet.Read[export.SeqRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].BarcodeSeq != "AC" || rows[0].UMISeq != "TG" || rows[0].Index != 5 {
		t.Errorf("row 0 = %+v", rows[0])
	}
}

func TestExport_RequiresOutput(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.ibu")
	writeFile(t, in, format.NewHeader(2, 2), nil)
	if _, err := execute(t, &app{}, "export", in); err == nil {
		t.Error("expected error without --output")
	}
}

func TestS3RoundTrip(t *testing.T) {
	fake := s3test.NewFake()
	newApp := func() *app {
		return &app{s3Client: s3fetch.NewClientWithAPI(fake, s3fetch.Config{}), tmpDir: t.TempDir()}
	}

	if _, err := execute(t, newApp(), "generate", "-n", "4000", "--barcodes", "25", "-o", "s3://bkt/runs/a.ibu.zst"); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.Object("bkt", "runs/a.ibu.zst"); !ok {
		t.Fatal("object was not uploaded")
	}

	out, err := execute(t, newApp(), "stats", "s3://bkt/runs/a.ibu.zst")
	if err != nil {
		t.Fatal(err)
	}
	if got := statsField(t, out, "records"); got != "4000" {
		t.Errorf("records = %s, want 4000", got)
	}
	if got := statsField(t, out, "distinct_barcodes"); got != "25" {
		t.Errorf("distinct_barcodes = %s, want 25", got)
	}

	view, err := execute(t, newApp(), "view", "-n", "3", "s3://bkt/runs/a.ibu.zst")
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(view, "\n"); lines != 3 {
		t.Errorf("view printed %d lines, want 3", lines)
	}
}

func TestSort_ExternalWhenOverBudget(t *testing.T) {
	dir := t.TempDir()
	tmp := t.TempDir()
	in := filepath.Join(dir, "in.ibu")
	out := filepath.Join(dir, "out.ibu.zst")
	mustExecute(t, "generate", "-n", "50000", "-o", in)

	// 64KiB of budget holds far fewer than 50000 records.
	if _, err := execute(t, &app{tmpDir: tmp}, "sort", in, "--memory", "64KiB", "-o", out); err != nil {
		t.Fatal(err)
	}

	_, want := loadFile(t, in)
	slices.SortFunc(want, format.Compare)

	local := filepath.Join(dir, "out.ibu")
	mustExecute(t, "cat", out, "-o", local)
	h, got := loadFile(t, local)
	if !h.Sorted() {
		t.Error("sorted flag not set")
	}
	if !slices.Equal(got, want) {
		t.Error("external sort output differs from in-memory sort")
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("run files left behind: %d", len(entries))
	}
}

func TestSort_InvalidMemory(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.ibu")
	mustExecute(t, "generate", "-n", "10", "-o", in)

	if _, err := execute(t, &app{}, "sort", in, "--memory", "lots"); err == nil {
		t.Error("expected error for an unparseable --memory")
	}
}

func TestMemDebugFlag(t *testing.T) {
	a := &app{}
	in := filepath.Join(t.TempDir(), "in.ibu")
	if _, err := execute(t, a, "--mem-debug", "generate", "-n", "10", "-o", in); err != nil {
		t.Fatal(err)
	}
	if a.mem == nil || !a.mem.Enabled() {
		t.Error("--mem-debug did not enable memory diagnostics")
	}
}

func TestImport_ViewRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ibu")
	out := filepath.Join(dir, "out.ibu")
	recs := []format.Record{{Barcode: 1, UMI: 14, Index: 5}, {Barcode: 15, UMI: 0, Index: 6}}
	writeFile(t, in, format.NewHeader(2, 2), recs)

	text := mustExecute(t, "view", "--header", "--seq", in)
	if _, err := execute(t, &app{stdin: strings.NewReader(text)}, "import", "--bc-len", "2", "--umi-len", "2", "-o", out); err != nil {
		t.Fatal(err)
	}

	h, got := loadFile(t, out)
	if h.BarcodeLen != 2 || h.UMILen != 2 {
		t.Errorf("header = %+v", h)
	}
	if !slices.Equal(got, recs) {
		t.Errorf("records = %v, want %v", got, recs)
	}
}

func TestImport_ParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ibu")
	pq := filepath.Join(dir, "rows.parquet")
	out := filepath.Join(dir, "out.ibu")
	recs := []format.Record{{Barcode: 7, UMI: 1, Index: 9}, {Barcode: 3, UMI: 2, Index: 8}}
	writeFile(t, in, format.NewHeader(4, 4), recs)

	mustExecute(t, "export", in, "-o", pq, "--seq")
	mustExecute(t, "import", pq, "--bc-len", "4", "--umi-len", "4", "-o", out)

	_, got := loadFile(t, out)
	if !slices.Equal(got, recs) {
		t.Errorf("records = %v, want %v", got, recs)
	}
}

func TestImport_CSVHeaderRow(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rows.csv")
	out := filepath.Join(dir, "out.ibu")
	if err := os.WriteFile(in, []byte("index,barcode,umi\n3,ACGT,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mustExecute(t, "import", in, "--header-row", "--bc-len", "4", "--umi-len", "1", "-o", out)

	_, got := loadFile(t, out)
	want := []format.Record{{Barcode: 0b00011011, UMI: 1, Index: 3}}
	if !slices.Equal(got, want) {
		t.Errorf("records = %v, want %v", got, want)
	}
}

func TestImport_Errors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rows.tsv")
	if err := os.WriteFile(in, []byte("300\t0\t1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.ibu")

	if _, err := execute(t, &app{}, "import", in, "--table", "xlsx", "-o", out); err == nil {
		t.Error("expected error for unknown table kind")
	}
	_, err := execute(t, &app{}, "import", in, "--bc-len", "2", "-o", out)
	if !errors.Is(err, tabular.ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for a barcode wider than bc_len, got %v", err)
	}
}

func TestTableKind(t *testing.T) {
	tests := []struct {
		input, table, want string
	}{
		{"a.parquet", "auto", "parquet"},
		{"s3://b/k/a.csv.gz", "auto", "csv"},
		{"a.tsv.zst", "auto", "tsv"},
		{"-", "auto", "tsv"},
		{"a.txt", "csv", "csv"},
	}
	for _, tt := range tests {
		got, err := tableKind(tt.input, tt.table)
		if err != nil || got != tt.want {
			t.Errorf("tableKind(%q, %q) = %q, %v; want %q", tt.input, tt.table, got, err, tt.want)
		}
	}
}

func TestLogsCarryRunID(t *testing.T) {
	defer logging.Init(false, false)

	var logs bytes.Buffer
	root := newRootCmd(&app{stdin: bytes.NewReader(nil)})
	root.SetArgs([]string{"generate", "-n", "10", "-o", filepath.Join(t.TempDir(), "out.ibu")})
	root.SetOut(io.Discard)
	root.SetErr(&logs)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{`"run_id":"`, `"phase":"generate"`, `"event":"phase_completed"`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("expected %s in logs, got: %s", want, logs.String())
		}
	}
}
