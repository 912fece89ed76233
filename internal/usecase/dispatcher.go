package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/slapcommerce/backoffice/internal/domain/repository"
)

// ErrBadPayload marks a command whose payload could not be decoded or
// carried malformed fields. Callers treat it like a validation failure:
// reject, never retry.
var ErrBadPayload = errors.New("malformed command payload")

// Command is one back-office command, wherever it entered: the HTTP
// endpoint or the scheduler both dispatch through this shape.
type Command struct {
	Type          string
	Payload       json.RawMessage
	UserID        string
	CorrelationID string
}

// HandlerFunc executes one command type and returns the resulting state.
type HandlerFunc func(ctx context.Context, cmd Command) (any, error)

// Dispatcher routes commands to their registered handlers by type.
type Dispatcher struct {
	log      *logrus.Logger
	handlers map[string]HandlerFunc
}

func NewDispatcher(log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[string]HandlerFunc),
	}
}

func (d *Dispatcher) Register(commandType string, fn HandlerFunc) {
	d.handlers[commandType] = fn
}

// CommandTypes returns every registered command type, sorted.
func (d *Dispatcher) CommandTypes() []string {
	out := make([]string, 0, len(d.handlers))
	for ct := range d.handlers {
		out = append(out, ct)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (any, error) {
	fn, ok := d.handlers[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrNoHandler, cmd.Type)
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = uuid.NewString()
	}
	data, err := fn(ctx, cmd)
	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"command_type":   cmd.Type,
			"correlation_id": cmd.CorrelationID,
		}).Debug("command rejected")
		return nil, err
	}
	return data, nil
}

func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id %q", ErrBadPayload, raw)
	}
	return id, nil
}

// parseOptionalID accepts an empty id (the handler generates one) but
// rejects a malformed one.
func parseOptionalID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return parseID(raw)
}
