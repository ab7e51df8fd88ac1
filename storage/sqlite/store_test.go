package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofhir/orchestra/storage"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "orchestra.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", path, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func sampleSession(id string, createdAt time.Time) storage.SessionRecord {
	line := 4
	col := 12
	return storage.SessionRecord{
		ID:             id,
		DeviceAddress:  "192.168.1.20",
		DeviceHostname: "ward-7",
		ProfileURL:     "http://example.com/profile",
		PayloadCount:   1,
		EngineCount:    2,
		CreatedAt:      createdAt,
		Results: []storage.ResultRecord{
			{
				ID:              id + "-r0",
				SessionID:       id,
				Position:        0,
				PayloadIndex:    0,
				EngineIndex:     0,
				EngineIdentity:  "engine-a",
				EngineName:      "Local Rule Engine",
				ProfileURL:      "http://example.com/profile",
				Valid:           false,
				InitiatedAt:     createdAt,
				CompletedAt:     createdAt.Add(42 * time.Millisecond),
				OutcomeDocument: `{"resourceType":"OperationOutcome"}`,
				Issues: []storage.IssueRecord{
					{
						ID:          id + "-r0-i0",
						ResultID:    id + "-r0",
						Position:    0,
						Severity:    "ERROR",
						Message:     "required element is missing",
						Line:        &line,
						Column:      &col,
						Diagnostics: "Patient.gender",
					},
					{
						ID:       id + "-r0-i1",
						ResultID: id + "-r0",
						Position: 1,
						Severity: "WARNING",
						Message:  "unknown element ignored",
					},
				},
			},
			{
				ID:             id + "-r1",
				SessionID:      id,
				Position:       1,
				PayloadIndex:   0,
				EngineIndex:    1,
				EngineIdentity: "engine-b",
				EngineName:     "Embedded Reference Engine",
				ProfileURL:     "http://example.com/profile",
				Valid:          true,
				InitiatedAt:    createdAt,
				CompletedAt:    createdAt,
				Issues:         []storage.IssueRecord{},
			},
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	createdAt := time.Date(2026, time.March, 14, 9, 26, 53, 589_000_000, time.UTC)
	want := sampleSession("session-1", createdAt)
	if err := store.SaveSession(ctx, want); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := store.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}

	if got.ID != want.ID || got.DeviceAddress != want.DeviceAddress || got.DeviceHostname != want.DeviceHostname {
		t.Errorf("session header = %+v; want %+v", got, want)
	}
	if got.PayloadCount != 1 || got.EngineCount != 2 {
		t.Errorf("counts = %d/%d; want 1/2", got.PayloadCount, got.EngineCount)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v; want %v", got.CreatedAt, createdAt)
	}
	if len(got.Results) != 2 {
		t.Fatalf("result count = %d; want 2", len(got.Results))
	}

	first := got.Results[0]
	if first.ID != "session-1-r0" || first.Position != 0 || first.EngineName != "Local Rule Engine" {
		t.Errorf("first result = %+v", first)
	}
	if first.Valid {
		t.Error("first result valid = true; want false")
	}
	if !first.CompletedAt.Equal(createdAt.Add(42 * time.Millisecond)) {
		t.Errorf("CompletedAt = %v; want %v", first.CompletedAt, createdAt.Add(42*time.Millisecond))
	}
	if first.OutcomeDocument != `{"resourceType":"OperationOutcome"}` {
		t.Errorf("OutcomeDocument = %q", first.OutcomeDocument)
	}
	if len(first.Issues) != 2 {
		t.Fatalf("issue count = %d; want 2", len(first.Issues))
	}
	issue := first.Issues[0]
	if issue.Severity != "ERROR" || issue.Message != "required element is missing" {
		t.Errorf("issue = %+v", issue)
	}
	if issue.Line == nil || *issue.Line != 4 || issue.Column == nil || *issue.Column != 12 {
		t.Errorf("issue position = %v/%v; want 4/12", issue.Line, issue.Column)
	}
	if issue.Diagnostics != "Patient.gender" {
		t.Errorf("issue diagnostics = %q; want Patient.gender", issue.Diagnostics)
	}
	second := first.Issues[1]
	if second.Line != nil || second.Column != nil {
		t.Errorf("second issue position = %v/%v; want nil/nil", second.Line, second.Column)
	}

	valid := got.Results[1]
	if !valid.Valid || len(valid.Issues) != 0 {
		t.Errorf("second result = %+v; want valid with no issues", valid)
	}
}

func TestStore_GetSessionNotFound(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetSession() error = %v; want ErrNotFound", err)
	}
}

func TestStore_ListSessions(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"session-a", "session-b", "session-c"} {
		record := sampleSession(id, base.Add(time.Duration(i)*time.Minute))
		record.Results = nil
		if err := store.SaveSession(ctx, record); err != nil {
			t.Fatalf("SaveSession(%s) error = %v", id, err)
		}
	}

	records, err := store.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("session count = %d; want 2", len(records))
	}
	// Newest first.
	if records[0].ID != "session-c" || records[1].ID != "session-b" {
		t.Errorf("order = %s, %s; want session-c, session-b", records[0].ID, records[1].ID)
	}

	all, err := store.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("session count with default limit = %d; want 3", len(all))
	}
}

func TestStore_ResultsBySessionOrder(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	record := sampleSession("session-1", time.Now())
	// Insert out of order; reads must come back by position.
	record.Results[0], record.Results[1] = record.Results[1], record.Results[0]
	if err := store.SaveSession(ctx, record); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	results, err := store.ResultsBySession(ctx, "session-1")
	if err != nil {
		t.Fatalf("ResultsBySession() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("result count = %d; want 2", len(results))
	}
	if results[0].Position != 0 || results[1].Position != 1 {
		t.Errorf("positions = %d, %d; want 0, 1", results[0].Position, results[1].Position)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	record := sampleSession("session-1", time.Now())
	if err := store.SaveSession(ctx, record); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopening applies migrations again; they must be no-ops.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() after close error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession() after reopen error = %v", err)
	}
	if len(got.Results) != 2 {
		t.Errorf("result count after reopen = %d; want 2", len(got.Results))
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("Open with blank path did not fail")
	}
}
