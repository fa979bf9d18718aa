// ./internal/state/events.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/qvault-labs/qvm/internal/logger"
	"github.com/qvault-labs/qvm/internal/types"
)

// EventRecorder is a vault event sink backed by the vault_events table.
// Recording failures are logged and dropped: a broken event pipeline must
// never block a vault operation.
type EventRecorder struct {
	vaultName string
	logger    zerolog.Logger
}

// NewEventRecorder creates a sink writing events for vaultName.
func NewEventRecorder(vaultName string) *EventRecorder {
	return &EventRecorder{
		vaultName: vaultName,
		logger:    logger.GetForComponent("event_recorder"),
	}
}

// Emit implements types.EventSink.
func (r *EventRecorder) Emit(event types.Event) {
	if err := r.record(event); err != nil {
		r.logger.Error().Err(err).Str("kind", event.Kind).Msg("Failed to record vault event")
	}
}

func (r *EventRecorder) record(event types.Event) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal event attributes: %w", err)
	}

	stmt := `
        INSERT INTO vault_events (vault_name, kind, event_timestamp, attributes)
        VALUES ($1, $2, $3, $4);`

	if _, err := DB.Exec(stmt, r.vaultName, event.Kind, event.Timestamp, attrs); err != nil {
		return fmt.Errorf("failed to insert vault event: %w", err)
	}
	return nil
}

// RecentEvents returns the latest events of a given kind, newest first. An
// empty kind matches every kind.
func RecentEvents(vaultName, kind string, limit int) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT kind, event_timestamp, attributes
        FROM vault_events
        WHERE vault_name = $1 AND ($2 = '' OR kind = $2)
        ORDER BY event_timestamp DESC
        LIMIT $3;`

	rows, err := DB.Query(query, vaultName, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault events: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var e types.Event
		var attrs []byte
		if err := rows.Scan(&e.Kind, &e.Timestamp, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan vault event: %w", err)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event attributes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
