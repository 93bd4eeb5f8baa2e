package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-docs/internal/docstore"
	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
)

// A storage failure inside the store is logged once, carrying the document
// name, the operation, and the full wrap chain down to the os error.
func TestStoreFailureRecord(t *testing.T) {
	var buf bytes.Buffer
	lg, err := log.New(log.Options{App: "docs", JSON: true, ErrorLinks: 8, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	store, err := docstore.New(docstore.Options{
		Root:   filepath.Join(t.TempDir(), "missing"),
		Logger: lg.With("component", "docstore"),
	})
	if err != nil {
		t.Fatal(err)
	}

	werr := store.Write(context.Background(), "notes.md", []byte("hello"))
	if !errors.Is(werr, docstore.ErrIO) {
		t.Fatalf("Write err = %v, want ErrIO", werr)
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("want exactly one record, got %q: %v", buf.String(), err)
	}
	if rec["level"] != "ERROR" || rec["msg"] != "document storage failure" {
		t.Fatalf("record = %v", rec)
	}
	if rec["op"] != "write" || rec["document"] != "notes.md" || rec["component"] != "docstore" {
		t.Fatalf("fields = op:%v document:%v component:%v", rec["op"], rec["document"], rec["component"])
	}
	if rec["cause_type"] != "syscall.Errno" {
		t.Fatalf("cause_type = %v", rec["cause_type"])
	}

	chain, _ := rec["error_chain"].([]any)
	var joined []string
	for _, c := range chain {
		s, _ := c.(string)
		joined = append(joined, s)
	}
	if !containsString(joined, docstore.ErrIO.Error()) {
		t.Fatalf("storage kind missing from chain: %q", joined)
	}
	if last := joined[len(joined)-1]; !strings.Contains(last, "no such file") {
		t.Fatalf("chain should end at the os error, got %q", last)
	}

	links, _ := rec["error_links"].([]any)
	if len(links) == 0 {
		t.Fatal("error_links missing")
	}
	first, _ := links[0].(map[string]any)
	if fn, _ := first["func"].(string); !strings.Contains(fn, "/internal/docstore.") {
		t.Fatalf("first wrap site = %v, want inside the store", first["func"])
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
