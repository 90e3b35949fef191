package dispatch

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/badvoidstar/astervoids/internal/objects"
	"github.com/badvoidstar/astervoids/internal/realtime"
	"github.com/badvoidstar/astervoids/pkg/metrics"
	"github.com/badvoidstar/astervoids/pkg/validator"
)

func (d *Dispatcher) createObject(ctx *realtime.Context, data json.RawMessage) (any, error) {
	var req createObjectRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	member, ok := d.sessions.GetMemberByConnection(ctx.ConnectionID)
	if !ok {
		return nil, errNotInSession
	}

	emit := d.sessionEmitLock(member.SessionID)
	emit.Lock()
	defer emit.Unlock()

	obj := d.objects.CreateObject(member.SessionID, member.ID, req.Scope, req.Data, req.OwnerID)
	if obj == nil {
		d.log.Warn("object creation rejected",
			zap.String("sessionId", member.SessionID),
			zap.String("memberId", member.ID))
		return nil, nil
	}

	metrics.SessionObjects.Inc()
	group := sessionGroup(member.SessionID)
	d.transport.Broadcast(group, EventObjectCreated, obj)
	if typeKey := payloadType(obj); typeKey != "" && d.objects.CountByType(member.SessionID, typeKey) == 1 {
		d.transport.Broadcast(group, EventObjectTypeRestored, objectTypeEvent{Type: typeKey})
	}
	return obj, nil
}

func (d *Dispatcher) updateObjects(ctx *realtime.Context, data json.RawMessage) (any, error) {
	var req updateObjectsRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	member, ok := d.sessions.GetMemberByConnection(ctx.ConnectionID)
	if !ok {
		return nil, errNotInSession
	}

	emit := d.sessionEmitLock(member.SessionID)
	emit.Lock()
	defer emit.Unlock()

	updated := d.objects.UpdateObjects(member.SessionID, req.Updates)
	if updated == nil {
		updated = []*objects.Object{}
	}
	if len(updated) > 0 {
		d.transport.Broadcast(sessionGroup(member.SessionID), EventObjectsUpdated, updated)
	}
	return updated, nil
}

func (d *Dispatcher) deleteObject(ctx *realtime.Context, data json.RawMessage) (any, error) {
	var req deleteObjectRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	member, ok := d.sessions.GetMemberByConnection(ctx.ConnectionID)
	if !ok {
		return nil, errNotInSession
	}

	emit := d.sessionEmitLock(member.SessionID)
	emit.Lock()
	defer emit.Unlock()

	obj := d.objects.DeleteObject(member.SessionID, req.ObjectID)
	if obj == nil {
		return false, nil
	}

	metrics.SessionObjects.Dec()
	group := sessionGroup(member.SessionID)
	d.transport.Broadcast(group, EventObjectDeleted, objectDeletedEvent{ObjectID: obj.ID})
	if typeKey := payloadType(obj); typeKey != "" && d.objects.CountByType(member.SessionID, typeKey) == 0 {
		d.transport.Broadcast(group, EventObjectTypeEmpty, objectTypeEvent{Type: typeKey})
	}
	return true, nil
}

// payloadType extracts the conventional "type" key from object data.
func payloadType(obj *objects.Object) string {
	typeKey, _ := obj.Data["type"].(string)
	return typeKey
}
