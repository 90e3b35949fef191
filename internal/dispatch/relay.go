package dispatch

import (
	"encoding/json"

	"github.com/badvoidstar/astervoids/internal/realtime"
)

// relay builds a handler that forwards an opaque game payload to the
// caller's session group under the given event name. Relays take the
// per-session emit lock so they stay ordered with object broadcasts.
func (d *Dispatcher) relay(eventName string) realtime.HandlerFunc {
	return func(ctx *realtime.Context, data json.RawMessage) (any, error) {
		member, ok := d.sessions.GetMemberByConnection(ctx.ConnectionID)
		if !ok {
			return nil, errNotInSession
		}

		payload := json.RawMessage("null")
		if len(data) > 0 {
			payload = data
		}

		emit := d.sessionEmitLock(member.SessionID)
		emit.Lock()
		d.transport.Broadcast(sessionGroup(member.SessionID), eventName, relayEvent{
			ReporterID: member.ID,
			Payload:    payload,
		})
		emit.Unlock()
		return nil, nil
	}
}
