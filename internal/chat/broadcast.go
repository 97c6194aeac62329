package chat

import (
	"encoding/json"

	"go.uber.org/zap"
)

// BroadcastToRoom delivers envelope to every member of roomName as of the
// call. It returns the number of connections that accepted it.
func (r *Registry) BroadcastToRoom(roomName string, envelope any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastToRoomLocked(roomName, envelope)
}

// BroadcastGlobal delivers envelope to every connected session, joined or not.
func (r *Registry) BroadcastGlobal(envelope any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastGlobalLocked(envelope)
}

func (r *Registry) broadcastToRoomLocked(roomName string, envelope any) int {
	rm, ok := r.rooms[roomName]
	if !ok || len(rm.members) == 0 {
		return 0
	}

	targets := make([]*Session, 0, len(rm.members))
	for _, identity := range rm.members {
		if s, ok := r.identities[identity]; ok {
			targets = append(targets, s)
		}
	}
	return r.deliver(targets, envelope)
}

func (r *Registry) broadcastGlobalLocked(envelope any) int {
	targets := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		targets = append(targets, s)
	}
	return r.deliver(targets, envelope)
}

func (r *Registry) sendLocked(s *Session, envelope any) bool {
	return r.deliver([]*Session{s}, envelope) == 1
}

// deliver encodes once and queues the payload on each target. Closed
// connections are skipped; a refused enqueue is not retried.
func (r *Registry) deliver(targets []*Session, envelope any) int {
	if len(targets) == 0 {
		return 0
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		r.log.Error("Encoding outbound envelope failed", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, s := range targets {
		if s.conn == nil || s.conn.Closed() {
			continue
		}
		if !s.conn.Send(payload) {
			r.log.Warn("Dropped outbound envelope", zap.String("session", s.id))
			continue
		}
		delivered++
	}
	return delivered
}
