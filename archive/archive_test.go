package archive

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"
)

func TestAddAndReadBack(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	store, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t0 := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	rawA := bytes.Repeat([]byte{0xAA}, 480)
	rawB := bytes.Repeat([]byte{0xBB}, 480)
	store.Add(t0, rawA, false)
	store.Add(t0.Add(time.Second), rawB, true)

	// Close drains the write queue; reopen to read back.
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	store, err = Open(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(entries))
	}
	if !entries[0].Time.Equal(t0) || entries[0].Accepted || !bytes.Equal(entries[0].Raw, rawA) {
		t.Fatalf("first entry mismatch: %+v", entries[0])
	}
	if !entries[1].Accepted || !bytes.Equal(entries[1].Raw, rawB) {
		t.Fatalf("second entry mismatch: %+v", entries[1])
	}
}

func TestSessionCapStopsArchiving(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	store, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t0 := time.Now().UTC()
	store.Add(t0, []byte{1}, true)
	store.Add(t0.Add(time.Second), []byte{2}, true)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(dir, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the cap to hold at 1 snapshot, got %d", len(entries))
	}
}

func TestAddAfterCloseIsIgnored(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	store, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Must not panic on the closed queue.
	store.Add(time.Now(), []byte{1}, true)
}
