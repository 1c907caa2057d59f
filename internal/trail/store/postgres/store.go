// Package postgres implements the trail's persistence collaborator against
// PostgreSQL. Schema:
//
//	audit_events(id, event_type, subject_id, acting_user_id, lawful_basis,
//	             processing_purpose, data_categories, timestamp, ip_address,
//	             user_agent, session_id, details)
//	consent_records(consent_id, subject_id, consent_type, purpose,
//	             lawful_basis, given_at, withdrawn_at, version, details)
//
// The JSON field names in internal/domain are authoritative for the payload
// columns; this store only decomposes the fields it queries on.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"custodia/internal/domain"
	"custodia/internal/trail"
)

// Store implements trail.Persistence using database/sql and lib/pq.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL-backed persistence collaborator.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertEvent writes one audit event. Inserts are idempotent on event ID so
// a retried degraded write cannot duplicate the record.
func (s *Store) InsertEvent(ctx context.Context, event domain.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	categories := make([]string, len(event.DataCategories))
	for i, c := range event.DataCategories {
		categories[i] = string(c)
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, subject_id, acting_user_id, lawful_basis,
			processing_purpose, data_categories, timestamp, ip_address,
			user_agent, session_id, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.SubjectID,
		event.ActingUserID,
		string(event.LawfulBasis),
		event.ProcessingPurpose,
		pq.Array(categories),
		event.Timestamp,
		event.IPAddress,
		event.UserAgent,
		event.SessionID,
		details,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// InsertConsent writes one consent record.
func (s *Store) InsertConsent(ctx context.Context, record domain.ConsentRecord) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("marshal consent details: %w", err)
	}

	query := `
		INSERT INTO consent_records (
			consent_id, subject_id, consent_type, purpose, lawful_basis,
			given_at, withdrawn_at, version, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (consent_id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		record.ConsentID,
		record.SubjectID,
		record.ConsentType,
		record.Purpose,
		string(record.LawfulBasis),
		record.GivenAt,
		record.WithdrawnAt,
		record.Version,
		details,
	)
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

// WithdrawConsent sets withdrawn_at once; an already-withdrawn or unknown
// consent is untouched, keeping the operation idempotent end to end.
func (s *Store) WithdrawConsent(ctx context.Context, consentID string, withdrawnAt time.Time) error {
	query := `
		UPDATE consent_records
		SET withdrawn_at = $2
		WHERE consent_id = $1 AND withdrawn_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, consentID, withdrawnAt); err != nil {
		return fmt.Errorf("withdraw consent: %w", err)
	}
	return nil
}

// QueryEvents returns events matching the filter in ascending timestamp order.
func (s *Store) QueryEvents(ctx context.Context, f trail.Filter) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, event_type, subject_id, acting_user_id, lawful_basis,
		       processing_purpose, data_categories, timestamp, ip_address,
		       user_agent, session_id, details
		FROM audit_events
		WHERE ($1 = '' OR subject_id = $1)
		  AND ($2::timestamptz IS NULL OR timestamp >= $2)
		  AND ($3::timestamptz IS NULL OR timestamp <= $3)
		ORDER BY timestamp ASC
	`
	args := []any{f.SubjectID, nullTime(f.Start), nullTime(f.End)}
	if f.Limit > 0 {
		query += " LIMIT $4"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// QueryConsents returns consent records, optionally filtered by subject.
func (s *Store) QueryConsents(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error) {
	query := `
		SELECT consent_id, subject_id, consent_type, purpose, lawful_basis,
		       given_at, withdrawn_at, version, details
		FROM consent_records
		WHERE ($1 = '' OR subject_id = $1)
		ORDER BY given_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query consent records: %w", err)
	}
	defer rows.Close()

	var records []domain.ConsentRecord
	for rows.Next() {
		var (
			record      domain.ConsentRecord
			basis       string
			withdrawnAt sql.NullTime
			details     []byte
		)
		err := rows.Scan(
			&record.ConsentID,
			&record.SubjectID,
			&record.ConsentType,
			&record.Purpose,
			&basis,
			&record.GivenAt,
			&withdrawnAt,
			&record.Version,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		record.LawfulBasis = domain.LawfulBasis(basis)
		if withdrawnAt.Valid {
			t := withdrawnAt.Time
			record.WithdrawnAt = &t
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &record.Details); err != nil {
				return nil, fmt.Errorf("unmarshal consent details: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

func scanEvents(rows *sql.Rows) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event      domain.AuditEvent
			eventType  string
			basis      string
			categories []string
			details    []byte
		)
		err := rows.Scan(
			&event.ID,
			&eventType,
			&event.SubjectID,
			&event.ActingUserID,
			&basis,
			&event.ProcessingPurpose,
			pq.Array(&categories),
			&event.Timestamp,
			&event.IPAddress,
			&event.UserAgent,
			&event.SessionID,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.EventType = domain.EventType(eventType)
		event.LawfulBasis = domain.LawfulBasis(basis)
		event.DataCategories = make([]domain.DataCategory, len(categories))
		for i, c := range categories {
			event.DataCategories[i] = domain.DataCategory(c)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshal event details: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
