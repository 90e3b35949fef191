package dispatch

import (
	"encoding/json"
	"time"

	"github.com/badvoidstar/astervoids/internal/lobby"
	"github.com/badvoidstar/astervoids/internal/objects"
)

// GroupLobby is the broadcast group every connection joins on connect.
// Session members additionally join "session:<id>".
const GroupLobby = "lobby"

func sessionGroup(sessionID string) string {
	return "session:" + sessionID
}

// Event names pushed to clients.
const (
	EventSessionsChanged    = "OnSessionsChanged"
	EventMemberJoined       = "OnMemberJoined"
	EventMemberLeft         = "OnMemberLeft"
	EventGameStarted        = "OnGameStarted"
	EventObjectCreated      = "OnObjectCreated"
	EventObjectsUpdated     = "OnObjectsUpdated"
	EventObjectDeleted      = "OnObjectDeleted"
	EventObjectTypeEmpty    = "OnObjectTypeEmpty"
	EventObjectTypeRestored = "OnObjectTypeRestored"
	EventBulletHitReported  = "OnBulletHitReported"
	EventBulletHitConfirmed = "OnBulletHitConfirmed"
	EventBulletHitRejected  = "OnBulletHitRejected"
	EventShipHitReported    = "OnShipHitReported"
	EventScoreReported      = "OnScoreReported"
)

// memberJoinedEvent announces a new member to the rest of its session group.
type memberJoinedEvent struct {
	MemberID string     `json:"memberId"`
	Role     lobby.Role `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

// memberLeftEvent carries everything survivors need to reconcile a
// departure: the promotion outcome plus the object cleanup performed on the
// departed member's behalf.
type memberLeftEvent struct {
	MemberID         string              `json:"memberId"`
	PromotedMemberID string              `json:"promotedMemberId,omitempty"`
	PromotedRole     lobby.Role          `json:"promotedRole,omitempty"`
	DeletedObjectIDs []string            `json:"deletedObjectIds"`
	Migrations       []objects.Migration `json:"migrations"`
}

type gameStartedEvent struct {
	SessionID string `json:"sessionId"`
}

type objectDeletedEvent struct {
	ObjectID string `json:"objectId"`
}

// objectTypeEvent signals an object type count crossing zero in either
// direction.
type objectTypeEvent struct {
	Type string `json:"type"`
}

// relayEvent wraps an opaque game payload with the reporting member's id.
type relayEvent struct {
	ReporterID string          `json:"reporterId"`
	Payload    json.RawMessage `json:"payload"`
}
