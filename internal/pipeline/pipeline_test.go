package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/speclog/internal/chunk"
	"github.com/jackzampolin/speclog/internal/home"
	"github.com/jackzampolin/speclog/internal/providers"
	"github.com/jackzampolin/speclog/internal/report"
)

type fakeSplitter struct {
	dir   string
	mu    sync.Mutex
	calls []int
}

func (s *fakeSplitter) Split(ctx context.Context, src string, d chunk.Descriptor) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, d.ID)
	s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("chunk_%02d.pdf", d.ID))
	return path, os.WriteFile(path, []byte("%PDF"), 0o644)
}

func testSettings() Settings {
	return Settings{
		Plan:       chunk.PlanConfig{TokensPerPage: 530, MaxTokensPerChunk: 100000, MinChunkPages: 200},
		MaxWorkers: 4,
		MaxRetries: 2,
		Model:      "test-model",
		Pricing:    providers.Pricing{InputPerMillion: 1.25, OutputPerMillion: 10},
		Validate:   true,
	}
}

func entry(spec, title, text string) chunk.Entry {
	return chunk.Entry{ID: "A", Level: 1, SpecSection: spec, ArticleNumber: "1.3", SubmittalTitle: title, SubmittalType: "ACTION SUBMITTALS", Text: text}
}

func newTestPipeline(t *testing.T, pages int, splitter *fakeSplitter, ex chunk.Extractor) (*Pipeline, *home.Dir) {
	t.Helper()
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	p, err := New(Config{
		Settings: testSettings(),
		Home:     dir,
		Pages:    func(string) (int, error) { return pages, nil },
		NewSplitter: func(d string) Splitter {
			splitter.dir = d
			return splitter
		},
		NewExtractor: func(runID string) (chunk.Extractor, error) { return ex, nil },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, dir
}

func TestPipeline_SingleChunkSkipsSplit(t *testing.T) {
	splitter := &fakeSplitter{}
	var gotRef string
	ex := chunk.ExtractorFunc(func(ctx context.Context, d chunk.Descriptor) (*chunk.Extraction, error) {
		gotRef = d.SourceRef
		return &chunk.Extraction{
			Entries: []chunk.Entry{entry("03 30 00", "Product Data", "Submit mix designs.")},
			Usage:   chunk.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, CostUSD: 0.01},
			Model:   "served-model",
		}, nil
	})
	p, _ := newTestPipeline(t, 10, splitter, ex)

	res, err := p.Run(context.Background(), "spec.pdf")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(splitter.calls) != 0 {
		t.Errorf("expected no split calls, got %v", splitter.calls)
	}
	if gotRef != "spec.pdf" {
		t.Errorf("expected extractor to read spec.pdf, got %s", gotRef)
	}

	m := res.Metadata
	if m.NumChunks != 1 || m.SuccessfulChunks != 1 || m.FailedChunks != 0 {
		t.Errorf("unexpected chunk counts: %+v", m)
	}
	if m.Model != "served-model" {
		t.Errorf("expected served-model, got %s", m.Model)
	}
	if m.TotalPages != 10 {
		t.Errorf("expected 10 pages, got %d", m.TotalPages)
	}
	if m.UsageStats.TotalTokens != 120 {
		t.Errorf("expected 120 tokens, got %d", m.UsageStats.TotalTokens)
	}
	if m.RunID == "" {
		t.Error("expected run id")
	}
	if len(res.Bullets) != 1 {
		t.Errorf("expected 1 bullet, got %d", len(res.Bullets))
	}
	if m.FailedChunkIDs == nil {
		t.Error("expected empty, non-nil failed chunk ids")
	}
}

func TestPipeline_PartialFailure(t *testing.T) {
	splitter := &fakeSplitter{}
	var calls atomic.Int32
	ex := chunk.ExtractorFunc(func(ctx context.Context, d chunk.Descriptor) (*chunk.Extraction, error) {
		calls.Add(1)
		if !strings.Contains(d.SourceRef, fmt.Sprintf("chunk_%02d.pdf", d.ID)) {
			return nil, fmt.Errorf("unexpected source ref %s", d.SourceRef)
		}
		if d.ID == 3 {
			return nil, errors.New("model returned garbage")
		}
		return &chunk.Extraction{
			Entries: []chunk.Entry{
				entry("01 33 00", "Shared", "Appears in every chunk."),
				entry(fmt.Sprintf("0%d 00 00", d.ID), "Unique", "Only here."),
			},
			Usage: chunk.Usage{TotalTokens: 10},
		}, nil
	})
	p, dir := newTestPipeline(t, 1000, splitter, ex)

	res, err := p.Run(context.Background(), "spec.pdf")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	m := res.Metadata
	if m.NumChunks != 5 {
		t.Errorf("expected 5 chunks, got %d", m.NumChunks)
	}
	if len(splitter.calls) != 5 {
		t.Errorf("expected 5 split calls, got %d", len(splitter.calls))
	}
	if len(m.FailedChunkIDs) != 1 || m.FailedChunkIDs[0] != 3 {
		t.Errorf("expected failed chunk [3], got %v", m.FailedChunkIDs)
	}
	if m.SuccessfulChunks != 4 {
		t.Errorf("expected 4 successful chunks, got %d", m.SuccessfulChunks)
	}
	// Chunk 3 is retried once per retry round.
	if m.TotalRetries != 2 {
		t.Errorf("expected 2 retries, got %d", m.TotalRetries)
	}
	if int(calls.Load()) != 7 {
		t.Errorf("expected 7 extractor calls, got %d", calls.Load())
	}
	if len(m.Rounds) != 3 {
		t.Errorf("expected 3 rounds, got %d", len(m.Rounds))
	}
	if m.EntriesBeforeDedup != 8 || m.EntriesAfterDedup != 5 || m.DuplicatesRemoved != 3 {
		t.Errorf("unexpected dedup stats: before=%d after=%d removed=%d",
			m.EntriesBeforeDedup, m.EntriesAfterDedup, m.DuplicatesRemoved)
	}
	if m.Model != "test-model" {
		t.Errorf("expected fallback model test-model, got %s", m.Model)
	}
	if _, err := os.Stat(dir.ChunksDir(m.RunID)); !os.IsNotExist(err) {
		t.Errorf("expected chunk files to be removed, stat error = %v", err)
	}
}

func TestPipeline_KeepChunks(t *testing.T) {
	splitter := &fakeSplitter{}
	ex := chunk.ExtractorFunc(func(ctx context.Context, d chunk.Descriptor) (*chunk.Extraction, error) {
		return &chunk.Extraction{}, nil
	})
	p, dir := newTestPipeline(t, 1000, splitter, ex)
	p.settings.KeepChunks = true

	res, err := p.Run(context.Background(), "spec.pdf")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	files, err := os.ReadDir(dir.ChunksDir(res.Metadata.RunID))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(files) != 5 {
		t.Errorf("expected 5 kept chunk files, got %d", len(files))
	}
}

func TestPipeline_TotalFailure(t *testing.T) {
	ex := chunk.ExtractorFunc(func(ctx context.Context, d chunk.Descriptor) (*chunk.Extraction, error) {
		return nil, errors.New("provider down")
	})
	p, _ := newTestPipeline(t, 1000, &fakeSplitter{}, ex)

	res, err := p.Run(context.Background(), "spec.pdf")
	if err == nil {
		t.Fatal("expected error when every chunk fails")
	}
	if !errors.Is(err, chunk.ErrTotalFailure) {
		t.Errorf("expected ErrTotalFailure, got %v", err)
	}
	var tf *chunk.TotalFailureError
	if !errors.As(err, &tf) {
		t.Fatalf("expected *chunk.TotalFailureError, got %T", err)
	}
	if len(tf.FailedChunkIDs) != 5 {
		t.Errorf("expected 5 failed chunks, got %v", tf.FailedChunkIDs)
	}
	if res != nil {
		t.Error("expected nil result on total failure")
	}
}

func TestPipeline_PageCountError(t *testing.T) {
	dir, _ := home.New(t.TempDir())
	p, err := New(Config{
		Home:         dir,
		Settings:     testSettings(),
		Pages:        func(string) (int, error) { return 0, errors.New("not a pdf") },
		NewSplitter:  func(string) Splitter { return &fakeSplitter{} },
		NewExtractor: func(string) (chunk.Extractor, error) { return nil, errors.New("unreachable") },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Run(context.Background(), "bad.pdf"); err == nil || !strings.Contains(err.Error(), "not a pdf") {
		t.Errorf("expected page count error, got %v", err)
	}
}

func TestPipeline_ZeroPages(t *testing.T) {
	ex := chunk.ExtractorFunc(func(ctx context.Context, d chunk.Descriptor) (*chunk.Extraction, error) {
		return &chunk.Extraction{}, nil
	})
	p, _ := newTestPipeline(t, 0, &fakeSplitter{}, ex)

	if _, err := p.Run(context.Background(), "empty.pdf"); !errors.Is(err, chunk.ErrInvalidPlan) {
		t.Errorf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without home directory")
	}
	dir, _ := home.New(t.TempDir())
	if _, err := New(Config{Home: dir}); err == nil {
		t.Error("expected error without collaborators")
	}
}

func TestPipeline_Preview(t *testing.T) {
	p, _ := newTestPipeline(t, 1000, &fakeSplitter{}, chunk.ExtractorFunc(nil))

	est, err := p.Preview("spec.pdf")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if est.TotalPages != 1000 {
		t.Errorf("expected 1000 pages, got %d", est.TotalPages)
	}
	if est.EstimatedTokens != 530000 {
		t.Errorf("expected 530000 tokens, got %d", est.EstimatedTokens)
	}
	if !est.NeedsSplitting {
		t.Error("expected splitting to be needed")
	}
	if len(est.Chunks) != 5 {
		t.Errorf("expected 5 chunks, got %d", len(est.Chunks))
	}
	// 70000 input tokens and 25000 output tokens per chunk.
	want := 5 * (70000*1.25/1e6 + 25000*10.0/1e6)
	if math.Abs(est.EstimatedCostUSD-want) > 1e-9 {
		t.Errorf("expected cost %.4f, got %.4f", want, est.EstimatedCostUSD)
	}

	var sb strings.Builder
	if err := est.WriteText(&sb); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if !strings.Contains(sb.String(), "pages 801-1000") {
		t.Errorf("expected last chunk range in text, got %q", sb.String())
	}
}

func TestPublish(t *testing.T) {
	res := &Result{
		Bullets: []chunk.Entry{
			entry("03 30 00", "Product Data", "Submit mix designs."),
			{ID: "1", Level: 2, SpecSection: "03 30 00", Text: "Sub-bullet."},
		},
		Metadata: Metadata{RunID: "run-1", Source: "/in/spec.pdf", FailedChunkIDs: []int{}},
	}
	dir := t.TempDir()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("with json backup", func(t *testing.T) {
		sum, err := Publish(res, PublishOptions{Dir: dir, Timestamped: true, JSONBackup: true, Now: now})
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if sum.Rows != 1 {
			t.Errorf("expected 1 row, got %d", sum.Rows)
		}
		if filepath.Base(sum.Outputs.XLSX) != "spec_submittal_log_20250102_030405.xlsx" {
			t.Errorf("unexpected xlsx path %s", sum.Outputs.XLSX)
		}
		if _, err := os.Stat(sum.Outputs.XLSX); err != nil {
			t.Errorf("expected xlsx to exist: %v", err)
		}
		entries, err := report.LoadEntries(sum.Outputs.JSON)
		if err != nil {
			t.Fatalf("LoadEntries() error = %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected 2 bullets in backup, got %d", len(entries))
		}
	})

	t.Run("without json backup", func(t *testing.T) {
		sum, err := Publish(res, PublishOptions{Dir: dir, JSONBackup: false, Now: now})
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if sum.Outputs.JSON != "" {
			t.Errorf("expected no json path, got %s", sum.Outputs.JSON)
		}
		var sb strings.Builder
		if err := sum.WriteText(&sb); err != nil {
			t.Fatalf("WriteText() error = %v", err)
		}
		if strings.Contains(sb.String(), "JSON backup") {
			t.Error("expected no JSON backup line")
		}
	})
}
