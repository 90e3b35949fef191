package dispatch

import (
	"github.com/badvoidstar/astervoids/internal/lobby"
	"github.com/badvoidstar/astervoids/internal/objects"
)

// RPC method names served over the realtime channel.
const (
	methodCreateSession     = "CreateSession"
	methodJoinSession       = "JoinSession"
	methodLeaveSession      = "LeaveSession"
	methodGetActiveSessions = "GetActiveSessions"
	methodStartGame         = "StartGame"
	methodCreateObject      = "CreateObject"
	methodUpdateObjects     = "UpdateObjects"
	methodDeleteObject      = "DeleteObject"
	methodReportBulletHit   = "ReportBulletHit"
	methodConfirmBulletHit  = "ConfirmBulletHit"
	methodRejectBulletHit   = "RejectBulletHit"
	methodReportShipHit     = "ReportShipHit"
	methodReportScore       = "ReportScore"
)

type createSessionRequest struct {
	AspectRatio float64 `json:"aspectRatio"`
}

type joinSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type createObjectRequest struct {
	Scope   objects.Scope  `json:"scope" validate:"required,oneof=PerMember PerSession"`
	Data    map[string]any `json:"data"`
	OwnerID string         `json:"ownerId"`
}

type updateObjectsRequest struct {
	Updates []objects.Patch `json:"updates" validate:"max=256,dive"`
}

type deleteObjectRequest struct {
	ObjectID string `json:"objectId" validate:"required"`
}

// createSessionResult acknowledges a freshly created session to its
// authority.
type createSessionResult struct {
	SessionID   string     `json:"sessionId"`
	SessionName string     `json:"sessionName"`
	MemberID    string     `json:"memberId"`
	Role        lobby.Role `json:"role"`
	AspectRatio float64    `json:"aspectRatio"`
}

// joinSessionResult is the full snapshot a member needs to render the
// session it just joined. The aspect ratio is the one frozen at creation.
type joinSessionResult struct {
	SessionID   string            `json:"sessionId"`
	SessionName string            `json:"sessionName"`
	MemberID    string            `json:"memberId"`
	Role        lobby.Role        `json:"role"`
	Members     []lobby.Member    `json:"members"`
	Objects     []*objects.Object `json:"objects"`
	AspectRatio float64           `json:"aspectRatio"`
	GameStarted bool              `json:"gameStarted"`
}
