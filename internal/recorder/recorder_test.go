package recorder

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRotationKeepsNewestFiles(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < MaxRotatedFiles+2; i++ {
		if err := r.Start("boot"); err != nil {
			t.Fatal(err)
		}
		r.Log("pool_sweep", "", map[string]int{"evicted": i})
		time.Sleep(10 * time.Millisecond) // distinct mod times
	}
	r.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxRotatedFiles {
		t.Errorf("expected %d trace files, got %d", MaxRotatedFiles, len(entries))
	}
}

func TestLogWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start("boot"); err != nil {
		t.Fatal(err)
	}

	r.Log("run_started", "sess-1", map[string]string{"run_id": "r1"})
	r.Log("phase_advanced", "sess-1", map[string]int{"phase": 1})
	r.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 trace file, got %d", len(entries))
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var types []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("bad trace line %q: %v", sc.Text(), err)
		}
		if evt.Timestamp.IsZero() {
			t.Error("event missing timestamp")
		}
		if evt.SessionID != "sess-1" {
			t.Errorf("expected session sess-1, got %q", evt.SessionID)
		}
		types = append(types, evt.Type)
	}
	if len(types) != 2 || types[0] != "run_started" || types[1] != "phase_advanced" {
		t.Errorf("unexpected event types: %v", types)
	}
}

func TestUnstartedRecorderDropsEvents(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	r.Log("run_started", "sess-1", nil) // must not panic or create files

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no trace files, got %d", len(entries))
	}
}
