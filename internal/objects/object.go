package objects

import "time"

// Scope determines an object's lifetime relative to its owner.
type Scope string

const (
	// ScopePerMember ties the object to its owner; the object is deleted
	// when the owner departs.
	ScopePerMember Scope = "PerMember"

	// ScopePerSession ties the object to the session; ownership migrates
	// to a remaining member when the owner departs.
	ScopePerSession Scope = "PerSession"
)

// Object is a synchronized game object. Data is opaque to the registry
// except for the "type" key, which feeds the type index.
type Object struct {
	ID              string         `json:"objectId"`
	SessionID       string         `json:"sessionId"`
	CreatorMemberID string         `json:"creatorMemberId"`
	OwnerMemberID   string         `json:"ownerMemberId"`
	Scope           Scope          `json:"scope"`
	Data            map[string]any `json:"data"`
	Version         int64          `json:"version"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Patch describes one object mutation in a batch update. A nil
// ExpectedVersion skips the optimistic concurrency check.
type Patch struct {
	ObjectID        string         `json:"objectId" validate:"required"`
	Data            map[string]any `json:"data"`
	ExpectedVersion *int64         `json:"expectedVersion,omitempty"`
}

// Migration records an ownership transfer performed during a departure.
type Migration struct {
	ObjectID   string `json:"objectId"`
	NewOwnerID string `json:"newOwnerId"`
}

// DepartureOutcome summarises the object changes caused by a member
// departure. AffectedTypes lists the types of deleted objects so the
// dispatcher can check which of them transitioned to zero.
type DepartureOutcome struct {
	DeletedIDs    []string
	Migrations    []Migration
	AffectedTypes []string
}

// objectType extracts the special "type" key used by the type index.
func objectType(obj *Object) string {
	if obj.Data == nil {
		return ""
	}
	if typ, ok := obj.Data["type"].(string); ok {
		return typ
	}
	return ""
}

func cloneObject(obj *Object) *Object {
	clone := *obj
	clone.Data = cloneData(obj.Data)
	return &clone
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = value
	}
	return out
}
