package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"afin/internal/domain"
	"afin/internal/staging/inmemory"
)

// fakeExtractor scripts responses per call. Each entry of responses is
// returned in order; a nil error and empty repair list means no repair
// round-trips are expected.
type fakeExtractor struct {
	responses []scriptedResponse
	repairs   []scriptedResponse
	calls     int
	repaired  int
	blocks    []string
}

type scriptedResponse struct {
	out string
	err error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, block string) (string, error) {
	f.blocks = append(f.blocks, block)
	return f.next()
}

func (f *fakeExtractor) ExtractFile(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.blocks = append(f.blocks, string(data))
	return f.next()
}

func (f *fakeExtractor) next() (string, error) {
	if f.calls >= len(f.responses) {
		return "", errors.New("fakeExtractor: no scripted response left")
	}
	r := f.responses[f.calls]
	f.calls++
	return r.out, r.err
}

func (f *fakeExtractor) Repair(ctx context.Context, malformed string, parseErr error) (string, error) {
	if f.repaired >= len(f.repairs) {
		return "", errors.New("fakeExtractor: no scripted repair left")
	}
	r := f.repairs[f.repaired]
	f.repaired++
	return r.out, r.err
}

func csvWithRows(n int) []byte {
	var b strings.Builder
	b.WriteString("date,amount,payee\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "2024-01-%02d,-%d,Row %d\n", i%28+1, (i+1)*100, i)
	}
	return []byte(b.String())
}

func upload(name, mediaType string, data []byte) domain.Upload {
	return domain.Upload{Filename: name, MediaType: mediaType, Data: data}
}

func rowJSON(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"date":"2024-01-05","amount":-%d,"payee_name":"Row %d"}`, (i+1)*100, i)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestRunChunksLargeTableAndSurvivesChunkFailure(t *testing.T) {
	// 120 data rows at batch size 50: chunks of 50, 50, 20. The middle
	// chunk fails; the run keeps rows from chunks 1 and 3.
	ex := &fakeExtractor{
		responses: []scriptedResponse{
			{out: rowJSON(50)},
			{err: errors.New("model unavailable")},
			{out: rowJSON(20)},
		},
	}
	store := inmemory.NewStore()
	runner := NewRunner(ex, store, 50, 0, zerolog.Nop())

	report, err := runner.Run(context.Background(), "user-1",
		[]domain.Upload{upload("big.csv", "text/csv", csvWithRows(120))})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.ChunksTotal != 3 {
		t.Errorf("ChunksTotal = %d, want 3", report.ChunksTotal)
	}
	if report.ChunksFailed != 1 {
		t.Errorf("ChunksFailed = %d, want 1", report.ChunksFailed)
	}
	if report.RowsExtracted != 70 {
		t.Errorf("RowsExtracted = %d, want 70", report.RowsExtracted)
	}
	if report.FilesProcessed != 1 {
		t.Errorf("FilesProcessed = %d, want 1", report.FilesProcessed)
	}

	staged, _ := store.Read(context.Background(), "user-1")
	if len(staged) != 70 {
		t.Errorf("staged %d rows, want 70", len(staged))
	}
	if staged[0].ImportSource != "big.csv#0" {
		t.Errorf("first row import source = %q, want big.csv#0", staged[0].ImportSource)
	}
	if staged[69].ImportSource != "big.csv#2" {
		t.Errorf("last row import source = %q, want big.csv#2", staged[69].ImportSource)
	}
}

func TestRunRendersHeaderIntoEveryChunk(t *testing.T) {
	ex := &fakeExtractor{
		responses: []scriptedResponse{{out: "[]"}, {out: "[]"}},
	}
	runner := NewRunner(ex, inmemory.NewStore(), 50, 0, zerolog.Nop())

	if _, err := runner.Run(context.Background(), "user-1",
		[]domain.Upload{upload("big.csv", "text/csv", csvWithRows(60))}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(ex.blocks) != 2 {
		t.Fatalf("got %d extraction calls, want 2", len(ex.blocks))
	}
	for i, block := range ex.blocks {
		if !strings.HasPrefix(block, "date | amount | payee") {
			t.Errorf("chunk %d does not start with the header: %q", i, firstLine(block))
		}
	}
}

func TestRunRepairsMalformedOutputOnce(t *testing.T) {
	malformed := `[{"date":"2024-01-05","amount":-100,"payee_name":"Uber"`
	ex := &fakeExtractor{
		responses: []scriptedResponse{{out: malformed}},
		repairs:   []scriptedResponse{{out: rowJSON(1)}},
	}
	store := inmemory.NewStore()
	runner := NewRunner(ex, store, 50, 0, zerolog.Nop())

	report, err := runner.Run(context.Background(), "user-1",
		[]domain.Upload{upload("small.csv", "text/csv", csvWithRows(3))})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ex.repaired != 1 {
		t.Errorf("repair calls = %d, want 1", ex.repaired)
	}
	if report.ChunksFailed != 0 {
		t.Errorf("ChunksFailed = %d, want 0", report.ChunksFailed)
	}
	if report.RowsExtracted != 1 {
		t.Errorf("RowsExtracted = %d, want 1", report.RowsExtracted)
	}
}

func TestRunCountsChunkFailedWhenRepairFails(t *testing.T) {
	malformed := `[{"broken":`
	ex := &fakeExtractor{
		responses: []scriptedResponse{{out: malformed}},
		repairs:   []scriptedResponse{{out: "still not json"}},
	}
	runner := NewRunner(ex, inmemory.NewStore(), 50, 0, zerolog.Nop())

	report, err := runner.Run(context.Background(), "user-1",
		[]domain.Upload{upload("small.csv", "text/csv", csvWithRows(3))})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.ChunksFailed != 1 || report.ChunksTotal != 1 {
		t.Errorf("report = %+v, want 1 failed of 1", report)
	}
	if report.RowsExtracted != 0 {
		t.Errorf("RowsExtracted = %d, want 0", report.RowsExtracted)
	}
}

func TestRunNativeDocumentSingleChunk(t *testing.T) {
	ex := &fakeExtractor{
		responses: []scriptedResponse{{out: rowJSON(2)}},
	}
	store := inmemory.NewStore()
	runner := NewRunner(ex, store, 50, 0, zerolog.Nop())

	report, err := runner.Run(context.Background(), "user-1",
		[]domain.Upload{upload("statement.pdf", "application/pdf", []byte("%PDF-1.4"))})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.ChunksTotal != 1 {
		t.Errorf("ChunksTotal = %d, want 1 (native documents are one chunk)", report.ChunksTotal)
	}
	staged, _ := store.Read(context.Background(), "user-1")
	if len(staged) != 2 {
		t.Errorf("staged %d rows, want 2", len(staged))
	}
	if staged[0].ImportSource != "statement.pdf#0" {
		t.Errorf("import source = %q, want statement.pdf#0", staged[0].ImportSource)
	}
}

func TestRunCollectsAccountHints(t *testing.T) {
	ex := &fakeExtractor{
		responses: []scriptedResponse{
			{out: `[{"date":"2024-01-05","amount":-100,"payee_name":"A","account":"Bancolombia"},` +
				`{"date":"2024-01-06","amount":-200,"payee_name":"B","account":"bancolombia"}]`},
		},
	}
	runner := NewRunner(ex, inmemory.NewStore(), 50, 0, zerolog.Nop())

	report, err := runner.Run(context.Background(), "user-1",
		[]domain.Upload{upload("a.csv", "text/csv", csvWithRows(2))})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.AccountHints) != 1 || report.AccountHints[0] != "Bancolombia" {
		t.Errorf("AccountHints = %v, want [Bancolombia]", report.AccountHints)
	}
}

func TestRunIngestionDateUsesLocalCalendarDay(t *testing.T) {
	// Late evening in UTC-5 is already the next day in UTC; the fallback
	// date for undated rows must stay on the local calendar day.
	ex := &fakeExtractor{
		responses: []scriptedResponse{
			{out: `[{"amount":-100,"payee_name":"Sin fecha"}]`},
		},
	}
	store := inmemory.NewStore()
	runner := NewRunner(ex, store, 50, 0, zerolog.Nop())
	runner.now = func() time.Time {
		return time.Date(2024, 3, 15, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	}

	if _, err := runner.Run(context.Background(), "user-1",
		[]domain.Upload{upload("small.csv", "text/csv", csvWithRows(1))}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	staged, _ := store.Read(context.Background(), "user-1")
	if len(staged) != 1 {
		t.Fatalf("staged %d rows, want 1", len(staged))
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !staged[0].Date.Equal(want) {
		t.Errorf("fallback date = %s, want %s", staged[0].Date, want)
	}
}

func TestTextBlocksBoundsLines(t *testing.T) {
	text := strings.Repeat("line\n", 95) + "\n\n"
	blocks := textBlocks(text, 40)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	for i, b := range blocks[:2] {
		if n := strings.Count(b, "\n") + 1; n != 40 {
			t.Errorf("block %d has %d lines, want 40", i, n)
		}
	}
	if n := strings.Count(blocks[2], "\n") + 1; n != 15 {
		t.Errorf("last block has %d lines, want 15", n)
	}
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		return s[:idx]
	}
	return s
}
