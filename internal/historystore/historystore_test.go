package historystore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		e := Event{Name: "web", Time: now.Add(time.Duration(i) * time.Second), Kind: "use", Detail: "attached"}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Record(ctx, Event{Name: "worker", Time: now, Kind: "use"}); err != nil {
		t.Fatalf("Record other name: %v", err)
	}

	events, err := s.Recent(ctx, "web", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// newest first
	if !events[0].Time.After(events[2].Time) {
		t.Errorf("expected newest-first ordering, got %+v", events)
	}
}

func TestRecentLimit(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.Record(ctx, Event{Name: "web", Time: time.Now(), Kind: "check"})
	}
	events, err := s.Recent(ctx, "web", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d, want 2", len(events))
	}
}

func TestRecordBestEffortWritesAndNoOpsWhenDisabled(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")

	RecordBestEffort("", Event{Name: "web", Time: time.Now(), Kind: "launch"})

	RecordBestEffort(dsn, Event{Name: "web", Time: time.Now(), Kind: "launch", Detail: "started pid=1"})
	RecordBestEffort(dsn, Event{Name: "web", Time: time.Now(), Kind: "shutdown", Detail: "pid=1 reason=server-exited"})

	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	events, err := s.Recent(context.Background(), "web", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (empty dsn should have recorded nothing)", len(events))
	}
}
