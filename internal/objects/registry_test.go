package objects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeMemberships struct {
	sessions map[string]map[string]bool
}

func newFakeMemberships() *fakeMemberships {
	return &fakeMemberships{sessions: make(map[string]map[string]bool)}
}

func (f *fakeMemberships) addSession(sessionID string, memberIDs ...string) {
	members := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = true
	}
	f.sessions[sessionID] = members
}

func (f *fakeMemberships) SessionExists(sessionID string) bool {
	_, ok := f.sessions[sessionID]
	return ok
}

func (f *fakeMemberships) IsMember(sessionID, memberID string) bool {
	return f.sessions[sessionID][memberID]
}

func ptrInt64(value int64) *int64 {
	return &value
}

func TestRegistry_CreateObject(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a", "mem-b")
	reg := NewRegistry(fake, Options{DistributeOrphanedObjects: true})

	data := map[string]any{"type": "asteroid", "x": 10.5}
	obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, data, "")
	require.NotNil(t, obj)
	require.NotEmpty(t, obj.ID)
	require.Equal(t, "sess-1", obj.SessionID)
	require.Equal(t, "mem-a", obj.CreatorMemberID)
	require.Equal(t, "mem-a", obj.OwnerMemberID)
	require.Equal(t, ScopePerSession, obj.Scope)
	require.Equal(t, int64(1), obj.Version)
	require.Equal(t, obj.CreatedAt, obj.UpdatedAt)

	// the store keeps its own copy of the payload
	data["x"] = 99.0
	stored := reg.GetObject("sess-1", obj.ID)
	require.Equal(t, 10.5, stored.Data["x"])

	owned := reg.CreateObject("sess-1", "mem-a", ScopePerMember, nil, "mem-b")
	require.NotNil(t, owned)
	require.Equal(t, "mem-a", owned.CreatorMemberID)
	require.Equal(t, "mem-b", owned.OwnerMemberID)
}

func TestRegistry_CreateObjectRejections(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	require.Nil(t, reg.CreateObject("missing", "mem-a", ScopePerSession, nil, ""))
	require.Nil(t, reg.CreateObject("sess-1", "mem-x", ScopePerSession, nil, ""))
	require.Nil(t, reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "mem-x"))
	require.Nil(t, reg.CreateObject("sess-1", "mem-a", Scope("Global"), nil, ""))
	require.Empty(t, reg.ListSessionObjects("sess-1"))
}

func TestRegistry_UpdateObjectShallowMerge(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.timeNow = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"type": "ship", "x": 1.0, "y": 2.0}, "")
	require.NotNil(t, obj)

	updated := reg.UpdateObject("sess-1", obj.ID, map[string]any{"x": 5.0}, nil)
	require.NotNil(t, updated)
	require.Equal(t, int64(2), updated.Version)
	require.Equal(t, 5.0, updated.Data["x"])
	require.Equal(t, 2.0, updated.Data["y"])
	require.Equal(t, "ship", updated.Data["type"])
	require.True(t, updated.UpdatedAt.After(updated.CreatedAt))
}

func TestRegistry_UpdateObjectOptimisticConcurrency(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"hp": 3}, "")
	require.NotNil(t, obj)

	// two racers both expect version 1; exactly one wins
	first := reg.UpdateObject("sess-1", obj.ID, map[string]any{"hp": 2}, ptrInt64(1))
	require.NotNil(t, first)
	require.Equal(t, int64(2), first.Version)

	second := reg.UpdateObject("sess-1", obj.ID, map[string]any{"hp": 1}, ptrInt64(1))
	require.Nil(t, second)

	current := reg.GetObject("sess-1", obj.ID)
	require.Equal(t, int64(2), current.Version)
	require.Equal(t, 2, current.Data["hp"])
}

func TestRegistry_UpdateObjectVersionedEqualsUnversioned(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	left := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"x": 0.0}, "")
	right := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"x": 0.0}, "")

	withCheck := reg.UpdateObject("sess-1", left.ID, map[string]any{"x": 1.0}, ptrInt64(1))
	withoutCheck := reg.UpdateObject("sess-1", right.ID, map[string]any{"x": 1.0}, nil)

	require.NotNil(t, withCheck)
	require.NotNil(t, withoutCheck)
	require.Equal(t, withCheck.Version, withoutCheck.Version)
	require.Equal(t, int64(2), withCheck.Version)
}

func TestRegistry_UpdateObjectMissing(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	require.Nil(t, reg.UpdateObject("missing", "obj-1", nil, nil))

	obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")
	require.NotNil(t, reg.DeleteObject("sess-1", obj.ID))

	// updating a deleted object is a silent no-op
	require.Nil(t, reg.UpdateObject("sess-1", obj.ID, map[string]any{"x": 1.0}, nil))
}

func TestRegistry_UpdateObjectsAppliesIndependently(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	first := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"n": 1}, "")
	second := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"n": 2}, "")
	third := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"n": 3}, "")

	updated := reg.UpdateObjects("sess-1", []Patch{
		{ObjectID: first.ID, Data: map[string]any{"n": 10}},
		{ObjectID: second.ID, Data: map[string]any{"n": 20}, ExpectedVersion: ptrInt64(7)},
		{ObjectID: "missing", Data: map[string]any{"n": 0}},
		{ObjectID: third.ID, Data: map[string]any{"n": 30}, ExpectedVersion: ptrInt64(1)},
	})

	require.Len(t, updated, 2)
	require.Equal(t, first.ID, updated[0].ID)
	require.Equal(t, third.ID, updated[1].ID)

	// the failed patch left its target untouched
	require.Equal(t, int64(1), reg.GetObject("sess-1", second.ID).Version)
}

func TestRegistry_DeleteObjectDoubleDelete(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	x := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"type": "asteroid"}, "")
	y := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"type": "ship"}, "")

	removed := reg.DeleteObject("sess-1", x.ID)
	require.NotNil(t, removed)
	require.Equal(t, x.ID, removed.ID)

	require.Nil(t, reg.DeleteObject("sess-1", x.ID))

	rest := reg.ListSessionObjects("sess-1")
	require.Len(t, rest, 1)
	require.Equal(t, y.ID, rest[0].ID)
	require.Equal(t, 0, reg.CountByType("sess-1", "asteroid"))
	require.Equal(t, 1, reg.CountByType("sess-1", "ship"))
}

func TestRegistry_TypeIndexFollowsTypeChanges(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, map[string]any{"type": "asteroid"}, "")
	require.Equal(t, 1, reg.CountByType("sess-1", "asteroid"))

	updated := reg.UpdateObject("sess-1", obj.ID, map[string]any{"type": "debris"}, nil)
	require.NotNil(t, updated)
	require.Equal(t, 0, reg.CountByType("sess-1", "asteroid"))
	require.Equal(t, 1, reg.CountByType("sess-1", "debris"))

	// updates that keep the type leave the index alone
	reg.UpdateObject("sess-1", obj.ID, map[string]any{"x": 4.0}, nil)
	require.Equal(t, 1, reg.CountByType("sess-1", "debris"))

	reg.DeleteObject("sess-1", obj.ID)
	require.Equal(t, 0, reg.CountByType("sess-1", "debris"))
}

func TestRegistry_ListSessionObjectsInsertionOrder(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{})

	first := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")
	second := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")
	third := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")

	reg.DeleteObject("sess-1", second.ID)
	fourth := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")

	list := reg.ListSessionObjects("sess-1")
	require.Len(t, list, 3)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, third.ID, list[1].ID)
	require.Equal(t, fourth.ID, list[2].ID)
}

func TestRegistry_DepartureDeletesPerMemberObjects(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a", "mem-b")
	reg := NewRegistry(fake, Options{DistributeOrphanedObjects: true})

	mine := reg.CreateObject("sess-1", "mem-a", ScopePerMember, map[string]any{"type": "ship"}, "")
	theirs := reg.CreateObject("sess-1", "mem-b", ScopePerMember, map[string]any{"type": "ship"}, "")

	outcome := reg.HandleMemberDeparture("sess-1", "mem-a", []string{"mem-b"})
	require.Equal(t, []string{mine.ID}, outcome.DeletedIDs)
	require.Empty(t, outcome.Migrations)
	require.Equal(t, []string{"ship"}, outcome.AffectedTypes)

	require.Nil(t, reg.GetObject("sess-1", mine.ID))
	require.NotNil(t, reg.GetObject("sess-1", theirs.ID))
	require.Equal(t, 1, reg.CountByType("sess-1", "ship"))
}

func TestRegistry_DepartureMigratesToFirstSurvivor(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a", "mem-p0", "mem-p1")
	reg := NewRegistry(fake, Options{DistributeOrphanedObjects: false})

	ids := make([]string, 3)
	for i := range ids {
		obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")
		require.NotNil(t, obj)
		ids[i] = obj.ID
	}

	outcome := reg.HandleMemberDeparture("sess-1", "mem-a", []string{"mem-p0", "mem-p1"})
	require.Empty(t, outcome.DeletedIDs)
	require.Len(t, outcome.Migrations, 3)

	for i, migration := range outcome.Migrations {
		require.Equal(t, ids[i], migration.ObjectID)
		require.Equal(t, "mem-p0", migration.NewOwnerID)
	}
	for _, id := range ids {
		obj := reg.GetObject("sess-1", id)
		require.Equal(t, "mem-p0", obj.OwnerMemberID)
		require.Equal(t, int64(2), obj.Version)
	}
}

func TestRegistry_DepartureDistributesRoundRobin(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a", "mem-p0", "mem-p1")
	reg := NewRegistry(fake, Options{DistributeOrphanedObjects: true})

	ids := make([]string, 3)
	for i := range ids {
		obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")
		ids[i] = obj.ID
	}

	outcome := reg.HandleMemberDeparture("sess-1", "mem-a", []string{"mem-p0", "mem-p1"})
	require.Len(t, outcome.Migrations, 3)

	wantOwners := []string{"mem-p0", "mem-p1", "mem-p0"}
	for i, migration := range outcome.Migrations {
		require.Equal(t, ids[i], migration.ObjectID)
		require.Equal(t, wantOwners[i], migration.NewOwnerID)
	}
}

func TestRegistry_DepartureSingleSurvivorIgnoresDistribution(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a", "mem-b")
	reg := NewRegistry(fake, Options{DistributeOrphanedObjects: true})

	obj := reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")
	outcome := reg.HandleMemberDeparture("sess-1", "mem-a", []string{"mem-b"})
	require.Equal(t, []Migration{{ObjectID: obj.ID, NewOwnerID: "mem-b"}}, outcome.Migrations)
}

func TestRegistry_DepartureWithNoSurvivors(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a")
	reg := NewRegistry(fake, Options{DistributeOrphanedObjects: true})

	reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")
	reg.CreateObject("sess-1", "mem-a", ScopePerMember, map[string]any{"type": "ship"}, "")

	outcome := reg.HandleMemberDeparture("sess-1", "mem-a", nil)
	require.Len(t, outcome.DeletedIDs, 1)
	require.Empty(t, outcome.Migrations)

	// the session is going down; DropSession reports the leftovers
	require.Equal(t, 1, reg.DropSession("sess-1"))
	require.Nil(t, reg.ListSessionObjects("sess-1"))
}

func TestRegistry_DepartureIsIdempotent(t *testing.T) {
	fake := newFakeMemberships()
	fake.addSession("sess-1", "mem-a", "mem-b")
	reg := NewRegistry(fake, Options{DistributeOrphanedObjects: true})

	reg.CreateObject("sess-1", "mem-a", ScopePerMember, nil, "")
	reg.CreateObject("sess-1", "mem-a", ScopePerSession, nil, "")

	first := reg.HandleMemberDeparture("sess-1", "mem-a", []string{"mem-b"})
	require.Len(t, first.DeletedIDs, 1)
	require.Len(t, first.Migrations, 1)

	second := reg.HandleMemberDeparture("sess-1", "mem-a", []string{"mem-b"})
	require.Empty(t, second.DeletedIDs)
	require.Empty(t, second.Migrations)
	require.Empty(t, second.AffectedTypes)

	// the migrated object kept its post-migration version
	obj := reg.GetObject("sess-1", first.Migrations[0].ObjectID)
	require.Equal(t, int64(2), obj.Version)
}

func TestRegistry_DropSessionUnknown(t *testing.T) {
	fake := newFakeMemberships()
	reg := NewRegistry(fake, Options{})

	require.Equal(t, 0, reg.DropSession("missing"))
}
