package persistence

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// EventStore appends to the event log. Add registers the write with the
// active unit of work; nothing hits storage until the batch commits.
// List reads committed rows only and serves audit/replay, not the hot
// load path.
type EventStore struct {
	db  *DB
	set *writeSet
}

func (s *EventStore) Add(ev event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	s.set.events = append(s.set.events, entity.EventRecord{
		AggregateID:   ev.AggregateID,
		Version:       ev.Version,
		AggregateType: ev.AggregateType,
		EventType:     string(ev.Name),
		CorrelationID: ev.CorrelationID,
		UserID:        ev.UserID,
		OccurredAt:    ev.OccurredAt,
		Payload:       datatypes.JSON(payload),
	})
	return nil
}

// List returns the committed events for one aggregate, ascending by
// version.
func (s *EventStore) List(ctx context.Context, aggregateID uuid.UUID) ([]event.Event, error) {
	var rows []entity.EventRecord
	if err := s.db.Read(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		var payload event.Payload
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, err
		}
		out = append(out, event.Event{
			Name:          event.Type(row.EventType),
			AggregateID:   row.AggregateID,
			AggregateType: row.AggregateType,
			Version:       row.Version,
			CorrelationID: row.CorrelationID,
			UserID:        row.UserID,
			OccurredAt:    row.OccurredAt,
			Payload:       payload,
		})
	}
	return out, nil
}
