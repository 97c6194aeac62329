package chat

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Dispatcher decodes inbound frames and drives the Registry. Validation
// failures are answered with an error envelope to the sending session only.
type Dispatcher struct {
	registry *Registry
	log      *zap.Logger
}

// NewDispatcher returns a Dispatcher over registry.
func NewDispatcher(registry *Registry, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{registry: registry, log: log}
}

// Dispatch handles one raw inbound frame from s. The returned error is for
// logging; the client has already been told when it needed to be. Frames
// with an unknown type are ignored.
func (d *Dispatcher) Dispatch(s *Session, raw []byte) error {
	if s.State() == StateDisconnected {
		return ErrSessionClosed
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		d.log.Warn("Dropping malformed envelope", zap.String("session", s.ID()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case KindJoin:
		err = d.registry.Join(s, env.Username, env.Room)
	case KindMessage:
		// The session's own identity and room win over whatever the client claims.
		err = d.registry.Send(s, env.Message)
	case KindCreateRoom:
		err = d.registry.CreateRoom(s, env.Room)
	case KindLeave:
		d.registry.Leave(s)
	default:
		d.log.Debug("Ignoring unknown envelope type", zap.String("session", s.ID()), zap.String("type", env.Type))
		return nil
	}

	if err != nil {
		d.reject(s, env.Type, err)
	}
	return err
}

func (d *Dispatcher) reject(s *Session, kind string, err error) {
	if errors.Is(err, ErrSessionClosed) {
		return
	}
	d.log.Info("Rejected client request",
		zap.String("session", s.ID()),
		zap.String("type", kind),
		zap.Error(err))

	d.registry.mu.Lock()
	defer d.registry.mu.Unlock()
	d.registry.sendLocked(s, newError(clientMessage(err)))
}
