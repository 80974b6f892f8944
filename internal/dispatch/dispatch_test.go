package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"git-auto-add/internal/lock"
	"git-auto-add/internal/stage"
	"git-auto-add/internal/store"
)

// fakeStager is a test double for stage.Stager.
type fakeStager struct {
	mu      sync.Mutex
	paths   []string
	stageFn func(ctx context.Context, path string) error
}

func (f *fakeStager) Stage(ctx context.Context, path string) error {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	if f.stageFn != nil {
		return f.stageFn(ctx, path)
	}
	return nil
}

func (f *fakeStager) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// fakeStore is a test double for store.RecordStore.
type fakeStore struct {
	mu      sync.Mutex
	recs    []store.Record
	indexFn func(ctx context.Context, rec store.Record) error
}

func (m *fakeStore) Index(ctx context.Context, rec store.Record) error {
	if m.indexFn != nil {
		return m.indexFn(ctx, rec)
	}
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

func (m *fakeStore) Close() error { return nil }

// Compile-time checks for the test doubles.
var (
	_ stage.Stager      = (*fakeStager)(nil)
	_ store.RecordStore = (*fakeStore)(nil)
)

func TestHandle_EditStagesFilePath(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{}
	d := New(fs, 0)

	body := `{"tool_name":"Edit","tool_input":{"file_path":"a.txt"}}`
	if err := d.Handle(context.Background(), strings.NewReader(body)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := fs.calls()
	if len(got) != 1 || got[0] != "a.txt" {
		t.Errorf("staged = %v, want [a.txt]", got)
	}
}

func TestHandle_MultiEditFallsBackToPath(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{}
	d := New(fs, 0)

	body := `{"tool_name":"MultiEdit","tool_input":{"path":"b.txt","edits":[{"old_string":"a","new_string":"b"}]}}`
	if err := d.Handle(context.Background(), strings.NewReader(body)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := fs.calls()
	if len(got) != 1 || got[0] != "b.txt" {
		t.Errorf("staged = %v, want [b.txt]", got)
	}
}

func TestHandle_NoStageCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"invalid JSON", `{not json`, nil},
		{"empty input", ``, nil},
		{"unhandled tool", `{"tool_name":"Read","tool_input":{"file_path":"a.txt"}}`, ErrIgnoredTool},
		{"missing tool_name", `{"tool_input":{"file_path":"a.txt"}}`, ErrIgnoredTool},
		{"edit without any path", `{"tool_name":"Edit","tool_input":{}}`, ErrNoPath},
		{"edit with only path", `{"tool_name":"Edit","tool_input":{"path":"b.txt"}}`, ErrNoPath},
		{"missing tool_input", `{"tool_name":"Write"}`, ErrNoPath},
		{"null tool_input", `{"tool_name":"Write","tool_input":null}`, ErrNoPath},
		{"non-string file_path", `{"tool_name":"Edit","tool_input":{"file_path":12}}`, ErrInvalidPath},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs := &fakeStager{}
			js := &fakeStore{}
			d := New(fs, 0)
			d.SetJournal(js)

			err := d.Handle(context.Background(), strings.NewReader(tt.body))
			if err == nil {
				t.Fatal("Handle should report why nothing was staged")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got := fs.calls(); len(got) != 0 {
				t.Errorf("staged = %v, want no calls", got)
			}
			js.mu.Lock()
			defer js.mu.Unlock()
			if len(js.recs) != 0 {
				t.Errorf("journal has %d records, want 0", len(js.recs))
			}
		})
	}
}

func TestHandle_StageErrorIsReturned(t *testing.T) {
	t.Parallel()
	stageErr := errors.New("exit status 128")
	fs := &fakeStager{stageFn: func(ctx context.Context, path string) error { return stageErr }}
	d := New(fs, 0)

	err := d.Handle(context.Background(), strings.NewReader(`{"tool_name":"Write","tool_input":{"file_path":"a.txt"}}`))
	if !errors.Is(err, stageErr) {
		t.Errorf("err = %v, want wrapped stage error", err)
	}
}

func TestHandle_StageDeadline(t *testing.T) {
	t.Parallel()
	var deadline time.Time
	fs := &fakeStager{stageFn: func(ctx context.Context, path string) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}}
	d := New(fs, 50*time.Millisecond)

	start := time.Now()
	err := d.Handle(context.Background(), strings.NewReader(`{"tool_name":"Edit","tool_input":{"file_path":"a.txt"}}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if deadline.IsZero() {
		t.Fatal("stager context should carry a deadline")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Handle took %s, want it bounded by the timeout", elapsed)
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	t.Parallel()
	d := New(&fakeStager{}, 0)
	if d.timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", d.timeout)
	}
}

func TestHandle_JournalRecordsAttempts(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{stageFn: func(ctx context.Context, path string) error {
		if path == "bad.txt" {
			return errors.New("pathspec did not match")
		}
		return nil
	}}
	js := &fakeStore{}
	d := New(fs, 0)
	d.SetJournal(js)

	body := `{"tool_name":"Edit","session_id":"sess-1","cwd":"/repo","tool_input":{"file_path":"good.txt"}}`
	if err := d.Handle(context.Background(), strings.NewReader(body)); err != nil {
		t.Fatalf("Handle good: %v", err)
	}
	body = `{"tool_name":"Write","tool_input":{"file_path":"bad.txt"}}`
	if err := d.Handle(context.Background(), strings.NewReader(body)); err == nil {
		t.Fatal("Handle bad: expected error")
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	if len(js.recs) != 2 {
		t.Fatalf("journal has %d records, want 2", len(js.recs))
	}

	good := js.recs[0]
	if !good.Staged || good.FilePath != "good.txt" || good.ToolName != "Edit" {
		t.Errorf("good record = %+v", good)
	}
	if good.SessionID != "sess-1" || good.Cwd != "/repo" {
		t.Errorf("good record session/cwd = %q/%q, want sess-1//repo", good.SessionID, good.Cwd)
	}

	bad := js.recs[1]
	if bad.Staged {
		t.Error("bad record should not be marked staged")
	}
	if !strings.Contains(bad.Error, "pathspec did not match") {
		t.Errorf("bad record Error = %q, want stage error text", bad.Error)
	}
}

func TestHandle_JournalFailureDoesNotFailStage(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{}
	js := &fakeStore{indexFn: func(ctx context.Context, rec store.Record) error {
		return errors.New("meilisearch down")
	}}
	d := New(fs, 0)
	d.SetJournal(js)

	var logs bytes.Buffer
	d.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	err := d.Handle(context.Background(), strings.NewReader(`{"tool_name":"Edit","tool_input":{"file_path":"a.txt"}}`))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(logs.String(), "journal write failed") {
		t.Errorf("log = %q, want journal failure logged", logs.String())
	}
}

func TestHandle_WithLock(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{}
	d := New(fs, time.Second)
	d.EnableLock(t.TempDir())

	for i := 0; i < 3; i++ {
		if err := d.Handle(context.Background(), strings.NewReader(`{"tool_name":"Edit","tool_input":{"file_path":"a.txt"}}`)); err != nil {
			t.Fatalf("Handle #%d: %v", i, err)
		}
	}
	if got := fs.calls(); len(got) != 3 {
		t.Errorf("staged %d times, want 3 (lock must be released between calls)", len(got))
	}
}

func TestRun_SwallowsFailures(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{stageFn: func(ctx context.Context, path string) error {
		return errors.New("git: command not found")
	}}
	d := New(fs, 0)

	var logs bytes.Buffer
	d.SetLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

	// Run has no return value; reaching the assertions is the contract.
	d.Run(context.Background(), strings.NewReader(`{"tool_name":"Edit","tool_input":{"file_path":"a.txt"}}`))
	d.Run(context.Background(), strings.NewReader(`garbage`))
	d.Run(context.Background(), strings.NewReader(`{"tool_name":"Bash"}`))

	if got := fs.calls(); len(got) != 1 {
		t.Errorf("staged = %v, want exactly one attempt", got)
	}
	out := logs.String()
	if !strings.Contains(out, "stage skipped") {
		t.Errorf("log = %q, want stage failure logged", out)
	}
	if !strings.Contains(out, "nothing to stage") {
		t.Errorf("log = %q, want filtered event logged at debug", out)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{stageFn: func(ctx context.Context, path string) error {
		panic("boom")
	}}
	d := New(fs, 0)

	var logs bytes.Buffer
	d.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	d.Run(context.Background(), strings.NewReader(`{"tool_name":"Write","tool_input":{"file_path":"a.txt"}}`))

	if !strings.Contains(logs.String(), "hook panicked") {
		t.Errorf("log = %q, want panic logged", logs.String())
	}
}

func TestHandle_LockUnavailableStillStages(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR does not drive os.TempDir on Windows")
	}
	dir := t.TempDir()
	t.Setenv("TMPDIR", filepath.Join(dir, "no-such-tmp"))

	fs := &fakeStager{}
	d := New(fs, time.Second)
	d.EnableLock(dir)

	if err := d.Handle(context.Background(), strings.NewReader(`{"tool_name":"Edit","tool_input":{"file_path":"a.txt"}}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := fs.calls(); len(got) != 1 || got[0] != "a.txt" {
		t.Errorf("staged = %v, want [a.txt]", got)
	}
}

func TestHandle_LockHeldTimesOut(t *testing.T) {
	dir := t.TempDir()
	held, err := lock.Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Unlock()

	fs := &fakeStager{}
	d := New(fs, 100*time.Millisecond)
	d.EnableLock(dir)

	err = d.Handle(context.Background(), strings.NewReader(`{"tool_name":"Edit","tool_input":{"file_path":"a.txt"}}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if got := fs.calls(); len(got) != 0 {
		t.Errorf("staged = %v, want none while another process holds the lock", got)
	}
}

func TestHandle_LargeWritePayload(t *testing.T) {
	t.Parallel()
	fs := &fakeStager{}
	d := New(fs, 0)

	body := `{"tool_name":"Write","tool_input":{"file_path":"big.txt","content":"` + strings.Repeat("x", 2<<20) + `"}}`
	if err := d.Handle(context.Background(), strings.NewReader(body)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := fs.calls(); len(got) != 1 || got[0] != "big.txt" {
		t.Errorf("staged = %v, want [big.txt]", got)
	}
}
