// Package storage defines the results-store collaborator: flattened
// persistence records derived from validated sessions, and the Store
// interface their persistence goes through. The orchestration core has
// no dependency on this package; callers adapt sessions into records
// with Snapshot and hand them to a Store implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gofhir/orchestra"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SessionRecord is one persisted validation session.
type SessionRecord struct {
	ID             string
	DeviceAddress  string
	DeviceHostname string
	ProfileURL     string
	PayloadCount   int
	EngineCount    int
	CreatedAt      time.Time
	Results        []ResultRecord
}

// ResultRecord is one persisted (payload, engine) validation result.
// Position is the result's index in the session's ordered result list;
// PayloadIndex and EngineIndex locate it in the payload-major,
// engine-minor grid.
type ResultRecord struct {
	ID              string
	SessionID       string
	Position        int
	PayloadIndex    int
	EngineIndex     int
	EngineIdentity  string
	EngineName      string
	ProfileURL      string
	Valid           bool
	InitiatedAt     time.Time
	CompletedAt     time.Time
	OutcomeDocument string
	Issues          []IssueRecord
}

// IssueRecord is one persisted validation issue. Line and Column are
// nil when the engine reported no position.
type IssueRecord struct {
	ID          string
	ResultID    string
	Position    int
	Severity    string
	Message     string
	Line        *int
	Column      *int
	Diagnostics string
}

// Store persists validation sessions and their results.
type Store interface {
	SaveSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	ResultsBySession(ctx context.Context, sessionID string) ([]ResultRecord, error)
	Close() error
}

// Snapshot flattens a validated session into a SessionRecord with
// fresh UUID identifiers. Result indices follow the session's
// payload-major, engine-minor ordering; a session validated more than
// once wraps into additional full passes.
func Snapshot(session *orchestra.Session) SessionRecord {
	device := session.Device()
	engineCount := len(session.Engines())

	record := SessionRecord{
		ID:             uuid.NewString(),
		DeviceAddress:  device.Address,
		DeviceHostname: device.Hostname,
		ProfileURL:     session.ProfileURL(),
		PayloadCount:   len(session.Payloads()),
		EngineCount:    engineCount,
		CreatedAt:      time.Now().UTC(),
	}

	results := session.Results()
	record.Results = make([]ResultRecord, 0, len(results))
	for i, result := range results {
		payloadIndex, engineIndex := 0, 0
		if engineCount > 0 {
			payloadIndex = (i / engineCount) % max(record.PayloadCount, 1)
			engineIndex = i % engineCount
		}

		rr := ResultRecord{
			ID:              uuid.NewString(),
			SessionID:       record.ID,
			Position:        i,
			PayloadIndex:    payloadIndex,
			EngineIndex:     engineIndex,
			EngineIdentity:  result.Observability.Identity,
			EngineName:      result.Observability.Name,
			ProfileURL:      result.ProfileURL,
			Valid:           result.Valid,
			InitiatedAt:     result.InitiatedAt,
			CompletedAt:     result.CompletedAt,
			OutcomeDocument: result.OutcomeDocument,
		}
		rr.Issues = make([]IssueRecord, 0, len(result.Issues))
		for j, issue := range result.Issues {
			rr.Issues = append(rr.Issues, IssueRecord{
				ID:          uuid.NewString(),
				ResultID:    rr.ID,
				Position:    j,
				Severity:    string(issue.Severity),
				Message:     issue.Message,
				Line:        issue.Location.Line,
				Column:      issue.Location.Column,
				Diagnostics: issue.Location.Diagnostics,
			})
		}
		record.Results = append(record.Results, rr)
	}

	return record
}
