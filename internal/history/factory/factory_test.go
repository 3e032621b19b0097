package factory

import (
	"path/filepath"
	"testing"

	"github.com/stackup-dev/stackup/internal/history/sqlite"
)

func TestDispatchSQLite(t *testing.T) {
	dir := t.TempDir()
	for _, dsn := range []string{
		"sqlite://" + filepath.Join(dir, "a.db"),
		filepath.Join(dir, "b.db"),
		":memory:",
	} {
		sink, err := NewSinkFromDSN(dsn)
		if err != nil {
			t.Fatalf("NewSinkFromDSN(%q): %v", dsn, err)
		}
		if _, ok := sink.(*sqlite.Sink); !ok {
			t.Fatalf("NewSinkFromDSN(%q) = %T, want *sqlite.Sink", dsn, sink)
		}
		_ = sink.Close()
	}
}

func TestDispatchRejectsUnknownScheme(t *testing.T) {
	if _, err := NewSinkFromDSN("mysql://root@localhost/db"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
