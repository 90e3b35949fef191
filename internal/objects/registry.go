package objects

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memberships is the view of the session registry the object registry needs
// for admission checks.
type Memberships interface {
	SessionExists(sessionID string) bool
	IsMember(sessionID, memberID string) bool
}

// Options shapes departure handling.
type Options struct {
	// DistributeOrphanedObjects spreads a departing owner's PerSession
	// objects round-robin over the remaining members instead of handing
	// them all to the first one.
	DistributeOrphanedObjects bool
}

// sessionStore holds one session's objects. order preserves insertion so
// migration round-robin and list snapshots iterate deterministically.
type sessionStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	order   []string
	types   map[string]map[string]struct{}
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		objects: make(map[string]*Object),
		types:   make(map[string]map[string]struct{}),
	}
}

// Registry stores synchronized objects per session. Mutations for one
// session serialise on the session store's mutex so version bumps and type
// index updates are atomic with the data change.
type Registry struct {
	mu      sync.RWMutex
	stores  map[string]*sessionStore
	members Memberships
	opts    Options
	timeNow func() time.Time
}

// NewRegistry constructs a Registry performing membership checks through
// members.
func NewRegistry(members Memberships, opts Options) *Registry {
	return &Registry{
		stores:  make(map[string]*sessionStore),
		members: members,
		opts:    opts,
		timeNow: time.Now,
	}
}

// CreateObject allocates an object owned by ownerID, or by the creator when
// ownerID is empty. It returns nil when the session is absent, the creator
// is not a member, the explicit owner is not a member, or the scope is
// unknown.
func (r *Registry) CreateObject(sessionID, creatorID string, scope Scope, data map[string]any, ownerID string) *Object {
	if scope != ScopePerMember && scope != ScopePerSession {
		return nil
	}
	if !r.members.SessionExists(sessionID) || !r.members.IsMember(sessionID, creatorID) {
		return nil
	}
	owner := ownerID
	if owner == "" {
		owner = creatorID
	} else if !r.members.IsMember(sessionID, owner) {
		return nil
	}

	now := r.timeNow()
	obj := &Object{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		CreatorMemberID: creatorID,
		OwnerMemberID:   owner,
		Scope:           scope,
		Data:            cloneData(data),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	st := r.store(sessionID)
	st.mu.Lock()
	st.objects[obj.ID] = obj
	st.order = append(st.order, obj.ID)
	st.indexType(obj)
	st.mu.Unlock()

	return cloneObject(obj)
}

// UpdateObject shallow-merges data into the object: patch keys overwrite,
// absent keys are preserved. It returns nil on a missing session or object,
// or when expectedVersion is set and does not match the current version;
// the mismatch is a silent no-op, not an error.
func (r *Registry) UpdateObject(sessionID, objectID string, data map[string]any, expectedVersion *int64) *Object {
	st, ok := r.lookup(sessionID)
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	obj, ok := st.objects[objectID]
	if !ok {
		return nil
	}
	if expectedVersion != nil && *expectedVersion != obj.Version {
		return nil
	}

	previousType := objectType(obj)
	if obj.Data == nil && len(data) > 0 {
		obj.Data = make(map[string]any, len(data))
	}
	for key, value := range data {
		obj.Data[key] = value
	}
	obj.Version++
	obj.UpdatedAt = r.timeNow()

	if newType := objectType(obj); newType != previousType {
		st.unindexType(previousType, obj.ID)
		st.indexType(obj)
	}

	return cloneObject(obj)
}

// UpdateObjects applies each patch independently with UpdateObject rules;
// patches that fail their precondition are skipped. Successes keep input
// order. There is no all-or-nothing semantic across patches.
func (r *Registry) UpdateObjects(sessionID string, patches []Patch) []*Object {
	updated := make([]*Object, 0, len(patches))
	for _, patch := range patches {
		if obj := r.UpdateObject(sessionID, patch.ObjectID, patch.Data, patch.ExpectedVersion); obj != nil {
			updated = append(updated, obj)
		}
	}
	return updated
}

// DeleteObject atomically takes the object out of the store and returns it,
// or nil when absent. The second delete of the same id returns nil without
// side effect.
func (r *Registry) DeleteObject(sessionID, objectID string) *Object {
	st, ok := r.lookup(sessionID)
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	obj, ok := st.objects[objectID]
	if !ok {
		return nil
	}
	st.remove(obj)
	return obj
}

// GetObject returns a copy of the object, or nil when absent.
func (r *Registry) GetObject(sessionID, objectID string) *Object {
	st, ok := r.lookup(sessionID)
	if !ok {
		return nil
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	obj, ok := st.objects[objectID]
	if !ok {
		return nil
	}
	return cloneObject(obj)
}

// ListSessionObjects returns copies of the session's objects in insertion
// order.
func (r *Registry) ListSessionObjects(sessionID string) []*Object {
	st, ok := r.lookup(sessionID)
	if !ok {
		return nil
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	list := make([]*Object, 0, len(st.order))
	for _, id := range st.order {
		if obj, ok := st.objects[id]; ok {
			list = append(list, cloneObject(obj))
		}
	}
	return list
}

// CountByType returns the number of live objects whose Data["type"] equals
// typeKey.
func (r *Registry) CountByType(sessionID, typeKey string) int {
	st, ok := r.lookup(sessionID)
	if !ok {
		return 0
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.types[typeKey])
}

// HandleMemberDeparture deletes the departing member's PerMember objects
// and migrates its PerSession objects to the remaining members. Objects are
// visited in insertion order; with distribution enabled and more than one
// survivor, successive orphans go to remainingMemberIDs[i mod n], otherwise
// every orphan goes to remainingMemberIDs[0]. Migrated objects get a
// version bump and a fresh UpdatedAt. A second call for the same member is
// a no-op.
func (r *Registry) HandleMemberDeparture(sessionID, departingMemberID string, remainingMemberIDs []string) DepartureOutcome {
	outcome := DepartureOutcome{}

	st, ok := r.lookup(sessionID)
	if !ok {
		return outcome
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := r.timeNow()
	distribute := r.opts.DistributeOrphanedObjects && len(remainingMemberIDs) > 1
	migrated := 0
	affected := make(map[string]struct{})

	// removals mutate order, so walk a copy
	for _, id := range append([]string(nil), st.order...) {
		obj, ok := st.objects[id]
		if !ok || obj.OwnerMemberID != departingMemberID {
			continue
		}

		switch obj.Scope {
		case ScopePerMember:
			st.remove(obj)
			outcome.DeletedIDs = append(outcome.DeletedIDs, obj.ID)
			if typ := objectType(obj); typ != "" {
				affected[typ] = struct{}{}
			}
		case ScopePerSession:
			if len(remainingMemberIDs) == 0 {
				// the session is being destroyed; DropSession purges
				continue
			}
			target := remainingMemberIDs[0]
			if distribute {
				target = remainingMemberIDs[migrated%len(remainingMemberIDs)]
			}
			obj.OwnerMemberID = target
			obj.Version++
			obj.UpdatedAt = now
			migrated++
			outcome.Migrations = append(outcome.Migrations, Migration{ObjectID: obj.ID, NewOwnerID: target})
		}
	}

	outcome.AffectedTypes = make([]string, 0, len(affected))
	for typ := range affected {
		outcome.AffectedTypes = append(outcome.AffectedTypes, typ)
	}
	sort.Strings(outcome.AffectedTypes)

	return outcome
}

// DropSession discards the session's store and returns how many objects it
// held.
func (r *Registry) DropSession(sessionID string) int {
	r.mu.Lock()
	st, ok := r.stores[sessionID]
	if ok {
		delete(r.stores, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.objects)
}

func (r *Registry) store(sessionID string) *sessionStore {
	r.mu.RLock()
	st, ok := r.stores[sessionID]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok = r.stores[sessionID]; ok {
		return st
	}
	st = newSessionStore()
	r.stores[sessionID] = st
	return st
}

func (r *Registry) lookup(sessionID string) (*sessionStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stores[sessionID]
	return st, ok
}

// remove deletes the object from the store. The caller holds st.mu.
func (st *sessionStore) remove(obj *Object) {
	delete(st.objects, obj.ID)
	for i, id := range st.order {
		if id == obj.ID {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	st.unindexType(objectType(obj), obj.ID)
}

// indexType adds the object to the type index. The caller holds st.mu.
func (st *sessionStore) indexType(obj *Object) {
	typ := objectType(obj)
	if typ == "" {
		return
	}
	set, ok := st.types[typ]
	if !ok {
		set = make(map[string]struct{})
		st.types[typ] = set
	}
	set[obj.ID] = struct{}{}
}

// unindexType removes the object from the type index. The caller holds
// st.mu.
func (st *sessionStore) unindexType(typ, objectID string) {
	if typ == "" {
		return
	}
	set, ok := st.types[typ]
	if !ok {
		return
	}
	delete(set, objectID)
	if len(set) == 0 {
		delete(st.types, typ)
	}
}
