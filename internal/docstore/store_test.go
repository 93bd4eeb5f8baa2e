package docstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

type spyObserver struct {
	mu  sync.Mutex
	ops []string
}

func (s *spyObserver) ObserveDocumentOp(op, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op+":"+result)
}

func (s *spyObserver) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ops) == 0 {
		return ""
	}
	return s.ops[len(s.ops)-1]
}

func newTestStore(t *testing.T) (*Store, *spyObserver) {
	t.Helper()
	obs := &spyObserver{}
	s, err := New(Options{Root: t.TempDir(), Observer: obs})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, obs
}

func writeRaw(t *testing.T, s *Store, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(s.Root(), name), []byte(content), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

// New

func TestNew_RequiresRoot(t *testing.T) {
	if _, err := New(Options{Root: "   "}); err == nil {
		t.Fatal("expected error for blank root")
	}
}

func TestNew_RootIsAbsolute(t *testing.T) {
	s, err := New(Options{Root: "relative/data"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !filepath.IsAbs(s.Root()) {
		t.Fatalf("Root() = %q, want absolute", s.Root())
	}
}

// List

func TestList_ReturnsBaseNames(t *testing.T) {
	s, _ := newTestStore(t)
	writeRaw(t, s, "file.txt", "Test doc 1.")
	writeRaw(t, s, "about.md", "# Test markdown doc.")

	names, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "about.md" || names[1] != "file.txt" {
		t.Fatalf("List = %v", names)
	}
}

func TestList_SkipsDirectoriesAndTempFiles(t *testing.T) {
	s, _ := newTestStore(t)
	writeRaw(t, s, "keep.txt", "")
	writeRaw(t, s, tempPrefix+"123", "partial")
	if err := os.Mkdir(filepath.Join(s.Root(), "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	names, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "keep.txt" {
		t.Fatalf("List = %v, want [keep.txt]", names)
	}
}

func TestList_MissingRootIsIOError(t *testing.T) {
	s, err := New(Options{Root: filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(context.Background()); !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

// Read / Write

func TestWriteRead_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	payloads := [][]byte{
		[]byte("User wrote this stuff."),
		{},
		{0x00, 0xff, '\n', 0x10},
		bytes.Repeat([]byte("abc"), 100_000),
	}
	for _, want := range payloads {
		if err := s.Write(ctx, "changes.txt", want); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got, err := s.Read(ctx, "changes.txt")
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(want))
		}
	}
}

func TestWrite_ReplacesWholeContent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	writeRaw(t, s, "doc.txt", "a much longer original body")

	if err := s.Write(ctx, "doc.txt", []byte("short")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read(ctx, "doc.txt")
	if string(got) != "short" {
		t.Fatalf("Read = %q, want %q", got, "short")
	}
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Write(context.Background(), "doc.md", []byte("# hi")); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(s.Root())
	for _, e := range entries {
		if e.Name() != "doc.md" {
			t.Fatalf("unexpected leftover %q", e.Name())
		}
	}
}

func TestRead_Missing(t *testing.T) {
	s, obs := newTestStore(t)
	_, err := s.Read(context.Background(), "notafile.ext")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := obs.last(); got != "read:not_found" {
		t.Fatalf("observer = %q, want read:not_found", got)
	}
}

func TestRead_UnsafeNamesAreNotFound(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "data")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("top secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"../secret.txt", "..", ".", "", "a/b.txt", `..\secret.txt`, "/etc/passwd", tempPrefix + "x"} {
		t.Run(name, func(t *testing.T) {
			data, err := s.Read(context.Background(), name)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Read(%q) err = %v, want ErrNotFound", name, err)
			}
			if data != nil {
				t.Fatalf("Read(%q) returned data", name)
			}
		})
	}
}

func TestRead_DirectoryIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if err := os.Mkdir(filepath.Join(s.Root(), "folder.md"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read(context.Background(), "folder.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRead_SymlinkIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(s.Root(), "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := s.Read(context.Background(), "link.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWrite_UnsafeNameIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Write(context.Background(), "../escape.txt", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Root()), "escape.txt")); err == nil {
		t.Fatal("file written outside root")
	}
}

// Create

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		reason Reason
	}{
		{"", ReasonNameRequired},
		{"   ", ReasonNameRequired},
		{"report", ReasonExtensionRequired},
		{"report.", ReasonExtensionRequired},
		{"report. ", ReasonExtensionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			_, err := s.Create(context.Background(), tt.name)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %T, want *ValidationError", err)
			}
			if ve.Reason != tt.reason {
				t.Fatalf("reason = %v, want %v", ve.Reason, tt.reason)
			}
			entries, _ := os.ReadDir(s.Root())
			if len(entries) != 0 {
				t.Fatalf("storage touched: %d entries", len(entries))
			}
		})
	}
}

func TestCreate_EmptyDocument(t *testing.T) {
	s, obs := newTestStore(t)
	ctx := context.Background()

	name, err := s.Create(ctx, "report.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if name != "report.txt" {
		t.Fatalf("name = %q", name)
	}
	data, err := s.Read(ctx, "report.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("len = %d, want 0", len(data))
	}
	if obs.ops[0] != "create:ok" {
		t.Fatalf("observer = %v", obs.ops)
	}
}

func TestCreate_TrimsName(t *testing.T) {
	s, _ := newTestStore(t)
	name, err := s.Create(context.Background(), "  new_document.txt ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if name != "new_document.txt" {
		t.Fatalf("name = %q", name)
	}
	if !s.Exists(context.Background(), "new_document.txt") {
		t.Fatal("trimmed name should exist")
	}
}

func TestCreate_ExistingIsNotTruncated(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	writeRaw(t, s, "keep.md", "# keep me")

	if _, err := s.Create(ctx, "keep.md"); !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
	got, _ := s.Read(ctx, "keep.md")
	if string(got) != "# keep me" {
		t.Fatalf("content changed to %q", got)
	}
}

func TestCreate_UnsafeNameIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Create(context.Background(), "../up.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// Delete

func TestExists_ReportsToObserver(t *testing.T) {
	s, obs := newTestStore(t)
	ctx := context.Background()
	writeRaw(t, s, "notes.md", "x")

	if !s.Exists(ctx, "notes.md") {
		t.Fatal("notes.md should exist")
	}
	if got := obs.last(); got != "exists:ok" {
		t.Fatalf("observed %q, want exists:ok", got)
	}
	if s.Exists(ctx, "README") {
		t.Fatal("README should not exist")
	}
	if got := obs.last(); got != "exists:not_found" {
		t.Fatalf("observed %q, want exists:not_found", got)
	}
	if err := os.Mkdir(filepath.Join(s.Root(), "sub.d"), 0o755); err != nil {
		t.Fatal(err)
	}
	if s.Exists(ctx, "sub.d") {
		t.Fatal("a directory is not a document")
	}
}

func TestDelete_ThenReadIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.Write(ctx, "test.txt", []byte("Test doc 1.")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "test.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(ctx, "test.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Delete(context.Background(), "ghost.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// Concurrency

func TestConcurrentWritesNeverTear(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := bytes.Repeat([]byte("a"), 64*1024)
	b := bytes.Repeat([]byte("b"), 32*1024)
	if err := s.Write(ctx, "race.txt", a); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			payload := a
			if i%2 == 1 {
				payload = b
			}
			if err := s.Write(ctx, "race.txt", payload); err != nil {
				t.Errorf("Write: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			got, err := s.Read(ctx, "race.txt")
			if err != nil {
				t.Errorf("Read: %v", err)
				return
			}
			if !bytes.Equal(got, a) && !bytes.Equal(got, b) {
				t.Errorf("torn read: %d bytes", len(got))
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentDeleteAndReadSurfacesNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := s.Write(ctx, "flaky.txt", []byte("x")); err != nil {
			t.Fatal(err)
		}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Delete(ctx, "flaky.txt")
		}()
		go func() {
			defer wg.Done()
			if _, err := s.Read(ctx, "flaky.txt"); err != nil && !errors.Is(err, ErrNotFound) {
				t.Errorf("Read err = %v, want nil or ErrNotFound", err)
			}
		}()
		wg.Wait()
	}
}
