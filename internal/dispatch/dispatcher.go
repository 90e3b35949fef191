// Package dispatch connects the lobby and object registries to the realtime
// transport: it owns broadcast groups, event fan-out, and the RPC surface.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/badvoidstar/astervoids/internal/lobby"
	"github.com/badvoidstar/astervoids/internal/objects"
	"github.com/badvoidstar/astervoids/internal/realtime"
	"github.com/badvoidstar/astervoids/pkg/logger"
	"github.com/badvoidstar/astervoids/pkg/metrics"
	"github.com/badvoidstar/astervoids/pkg/validator"
)

var errNotInSession = errors.New("dispatch: connection not in a session")

// Transport is the slice of the realtime server the dispatcher drives.
// *realtime.Server satisfies it; tests substitute a recording fake.
type Transport interface {
	Handle(method string, fn realtime.HandlerFunc)
	OnConnect(fn func(connectionID string))
	OnDisconnect(fn func(connectionID string, err error))
	AddToGroup(connectionID, group string)
	RemoveFromGroup(connectionID, group string)
	Broadcast(group, eventName string, data any)
	BroadcastExcept(group, eventName string, data any, exceptConnectionID string)
}

// Dispatcher binds the session and object registries to the realtime
// transport. It owns all group membership and event fan-out; the registries
// beneath it never see the transport.
type Dispatcher struct {
	transport Transport
	sessions  *lobby.Registry
	objects   *objects.Registry
	log       *zap.Logger

	// emitLocks serialises commit+broadcast per session so object events
	// reach the session group in commit order.
	mu        sync.Mutex
	emitLocks map[string]*sync.Mutex
}

// New constructs a Dispatcher over the given transport and registries.
func New(transport Transport, sessions *lobby.Registry, store *objects.Registry) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		sessions:  sessions,
		objects:   store,
		log:       logger.WithModule("dispatch"),
		emitLocks: make(map[string]*sync.Mutex),
	}
}

// Register attaches the connection lifecycle hooks and every RPC handler to
// the transport.
func (d *Dispatcher) Register() {
	d.transport.OnConnect(d.handleConnect)
	d.transport.OnDisconnect(d.handleDisconnect)

	d.transport.Handle(methodCreateSession, d.createSession)
	d.transport.Handle(methodJoinSession, d.joinSession)
	d.transport.Handle(methodLeaveSession, d.leaveSession)
	d.transport.Handle(methodGetActiveSessions, d.getActiveSessions)
	d.transport.Handle(methodStartGame, d.startGame)

	d.transport.Handle(methodCreateObject, d.createObject)
	d.transport.Handle(methodUpdateObjects, d.updateObjects)
	d.transport.Handle(methodDeleteObject, d.deleteObject)

	d.transport.Handle(methodReportBulletHit, d.relay(EventBulletHitReported))
	d.transport.Handle(methodConfirmBulletHit, d.relay(EventBulletHitConfirmed))
	d.transport.Handle(methodRejectBulletHit, d.relay(EventBulletHitRejected))
	d.transport.Handle(methodReportShipHit, d.relay(EventShipHitReported))
	d.transport.Handle(methodReportScore, d.relay(EventScoreReported))
}

func (d *Dispatcher) handleConnect(connectionID string) {
	d.transport.AddToGroup(connectionID, GroupLobby)
}

// handleDisconnect runs the full leave flow no matter how the connection
// ended. Cleanup must finish even when a step panics, so each step runs
// protected and failures are aggregated and logged, never propagated.
func (d *Dispatcher) handleDisconnect(connectionID string, cause error) {
	err := multierr.Combine(
		protect("leave session", func() { d.leave(connectionID) }),
		protect("drop lobby group", func() { d.transport.RemoveFromGroup(connectionID, GroupLobby) }),
	)
	if err != nil {
		d.log.Error("disconnect cleanup incomplete",
			zap.String("connectionId", connectionID),
			zap.Error(err))
		return
	}
	if cause != nil {
		d.log.Debug("connection closed",
			zap.String("connectionId", connectionID),
			zap.Error(cause))
	}
}

func (d *Dispatcher) createSession(ctx *realtime.Context, data json.RawMessage) (any, error) {
	var req createSessionRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	sess, member, err := d.sessions.CreateSession(ctx.ConnectionID, req.AspectRatio)
	if err != nil {
		return nil, err
	}

	d.transport.AddToGroup(ctx.ConnectionID, sessionGroup(sess.ID))
	metrics.ActiveSessions.Set(float64(d.sessions.Count()))
	d.transport.Broadcast(GroupLobby, EventSessionsChanged, nil)
	d.log.Info("session created",
		zap.String("sessionId", sess.ID),
		zap.String("sessionName", sess.Name),
		zap.String("memberId", member.ID))

	return createSessionResult{
		SessionID:   sess.ID,
		SessionName: sess.Name,
		MemberID:    member.ID,
		Role:        member.Role,
		AspectRatio: sess.AspectRatio,
	}, nil
}

func (d *Dispatcher) joinSession(ctx *realtime.Context, data json.RawMessage) (any, error) {
	var req joinSessionRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !d.sessions.SessionExists(req.SessionID) {
		return nil, lobby.ErrSessionNotFound
	}

	// The emit lock makes the snapshot and the member's group entry atomic
	// with respect to object broadcasts: every object is either in the
	// snapshot or delivered as a later event, never both or neither.
	emit := d.sessionEmitLock(req.SessionID)
	emit.Lock()
	defer emit.Unlock()

	sess, member, err := d.sessions.JoinSession(req.SessionID, ctx.ConnectionID)
	if err != nil {
		return nil, err
	}

	group := sessionGroup(sess.ID)
	d.transport.AddToGroup(ctx.ConnectionID, group)
	d.transport.BroadcastExcept(group, EventMemberJoined, memberJoinedEvent{
		MemberID: member.ID,
		Role:     member.Role,
		JoinedAt: member.JoinedAt,
	}, ctx.ConnectionID)
	d.transport.Broadcast(GroupLobby, EventSessionsChanged, nil)

	return joinSessionResult{
		SessionID:   sess.ID,
		SessionName: sess.Name,
		MemberID:    member.ID,
		Role:        member.Role,
		Members:     sess.Members,
		Objects:     d.objects.ListSessionObjects(sess.ID),
		AspectRatio: sess.AspectRatio,
		GameStarted: sess.GameStarted,
	}, nil
}

// leaveSession removes the caller from its session. The response carries no
// payload; leaving while not in a session is a no-op.
func (d *Dispatcher) leaveSession(ctx *realtime.Context, _ json.RawMessage) (any, error) {
	d.leave(ctx.ConnectionID)
	return nil, nil
}

func (d *Dispatcher) getActiveSessions(_ *realtime.Context, _ json.RawMessage) (any, error) {
	return d.sessions.ListActiveSessions(), nil
}

func (d *Dispatcher) startGame(ctx *realtime.Context, _ json.RawMessage) (any, error) {
	sessionID, ok := d.sessions.StartGame(ctx.ConnectionID)
	if !ok {
		d.log.Warn("start game rejected", zap.String("connectionId", ctx.ConnectionID))
		return false, nil
	}

	d.transport.Broadcast(sessionGroup(sessionID), EventGameStarted, gameStartedEvent{SessionID: sessionID})
	d.transport.Broadcast(GroupLobby, EventSessionsChanged, nil)
	d.log.Info("game started", zap.String("sessionId", sessionID))
	return true, nil
}

// leave runs the departure flow shared by the LeaveSession RPC and transport
// disconnects. Only the caller that actually removes the member emits
// events, so an explicit leave followed by the disconnect hook never
// announces the departure twice.
func (d *Dispatcher) leave(connectionID string) {
	member, ok := d.sessions.GetMemberByConnection(connectionID)
	if !ok {
		return
	}

	emit := d.sessionEmitLock(member.SessionID)
	emit.Lock()
	defer emit.Unlock()

	dep := d.sessions.LeaveSession(connectionID)
	if dep == nil {
		return
	}

	outcome := d.objects.HandleMemberDeparture(dep.SessionID, dep.MemberID, dep.RemainingMemberIDs)
	metrics.SessionObjects.Sub(float64(len(outcome.DeletedIDs)))

	d.transport.RemoveFromGroup(connectionID, sessionGroup(dep.SessionID))

	if dep.SessionDestroyed {
		dropped := d.objects.DropSession(dep.SessionID)
		metrics.SessionObjects.Sub(float64(dropped))
		d.dropEmitLock(dep.SessionID)
		d.log.Info("session destroyed",
			zap.String("sessionId", dep.SessionID),
			zap.String("sessionName", dep.SessionName))
	} else {
		evt := memberLeftEvent{
			MemberID:         dep.MemberID,
			DeletedObjectIDs: outcome.DeletedIDs,
			Migrations:       outcome.Migrations,
		}
		if evt.DeletedObjectIDs == nil {
			evt.DeletedObjectIDs = []string{}
		}
		if evt.Migrations == nil {
			evt.Migrations = []objects.Migration{}
		}
		if dep.Promoted != nil {
			evt.PromotedMemberID = dep.Promoted.MemberID
			evt.PromotedRole = dep.Promoted.Role
		}

		group := sessionGroup(dep.SessionID)
		d.transport.Broadcast(group, EventMemberLeft, evt)
		for _, typeKey := range outcome.AffectedTypes {
			if d.objects.CountByType(dep.SessionID, typeKey) == 0 {
				d.transport.Broadcast(group, EventObjectTypeEmpty, objectTypeEvent{Type: typeKey})
			}
		}
	}

	metrics.ActiveSessions.Set(float64(d.sessions.Count()))
	d.transport.Broadcast(GroupLobby, EventSessionsChanged, nil)
}

func (d *Dispatcher) sessionEmitLock(sessionID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.emitLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		d.emitLocks[sessionID] = lock
	}
	return lock
}

func (d *Dispatcher) dropEmitLock(sessionID string) {
	d.mu.Lock()
	delete(d.emitLocks, sessionID)
	d.mu.Unlock()
}

func protect(step string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", step, r)
		}
	}()
	fn()
	return nil
}

// decode unmarshals a request payload, tolerating an absent body for RPCs
// whose parameters are all optional.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("dispatch: decode request: %w", err)
	}
	return nil
}
