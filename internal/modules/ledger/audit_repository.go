package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// AuditRepository handles the append-only audit trail. Events are written
// outside the fill transaction: they are never mutated after creation, so
// they need no locking.
type AuditRepository struct {
	ledgerDB *sql.DB // ledger.db - audit_events table
	log      zerolog.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(ledgerDB *sql.DB, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "audit").Logger(),
	}
}

// Append records an audit event. The detail payload is marshaled to JSON;
// a nil detail becomes the empty object.
func (r *AuditRepository) Append(eventType, actor, clientID string, detail map[string]interface{}) error {
	detailJSON := "{}"
	if detail != nil {
		encoded, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to encode audit detail: %w", err)
		}
		detailJSON = string(encoded)
	}

	var client interface{}
	if clientID != "" {
		client = clientID
	}

	_, err := r.ledgerDB.Exec(
		`INSERT INTO audit_events (event_type, actor, client_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		eventType, actor, client, detailJSON, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	return nil
}

// GetRecent returns the most recent audit events, newest first
func (r *AuditRepository) GetRecent(limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, actor, client_id, detail, created_at
		FROM audit_events
		ORDER BY id DESC
		LIMIT ?`

	rows, err := r.ledgerDB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	return scanAuditEvents(rows)
}

// GetByClient returns the most recent audit events for one client, newest first
func (r *AuditRepository) GetByClient(clientID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, actor, client_id, detail, created_at
		FROM audit_events
		WHERE client_id = ?
		ORDER BY id DESC
		LIMIT ?`

	rows, err := r.ledgerDB.Query(query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events by client: %w", err)
	}
	defer rows.Close()

	return scanAuditEvents(rows)
}

func scanAuditEvents(rows *sql.Rows) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		var clientID sql.NullString
		var createdAt int64

		if err := rows.Scan(&event.ID, &event.Type, &event.Actor, &clientID, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if clientID.Valid {
			event.ClientID = clientID.String
		}
		event.CreatedAt = time.Unix(createdAt, 0).UTC()
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
