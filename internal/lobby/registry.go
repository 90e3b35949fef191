package lobby

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/badvoidstar/astervoids/pkg/logger"
)

// Default capacity limits.
const (
	DefaultMaxSessions          = 6
	DefaultMaxMembersPerSession = 4
)

const (
	minAspectRatio = 0.25
	maxAspectRatio = 4.0
)

// Options bounds registry capacity and shapes departure handling.
// DistributeOrphanedObjects is consumed by the object registry.
type Options struct {
	MaxSessions               int
	MaxMembersPerSession      int
	DistributeOrphanedObjects bool
}

// DefaultOptions returns the standard lobby limits.
func DefaultOptions() Options {
	return Options{
		MaxSessions:               DefaultMaxSessions,
		MaxMembersPerSession:      DefaultMaxMembersPerSession,
		DistributeOrphanedObjects: true,
	}
}

// Registry owns the authoritative set of live sessions, their members and
// the connection/member reverse indexes. Registry-wide mutations serialise
// on one mutex so the "already in a session? room available?" checks are
// linearisable; authority promotion additionally takes the session state
// mutex so snapshot readers never observe a half-flipped role.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	connIndex   map[string]string // connectionId -> memberId
	memberIndex map[string]string // memberId -> sessionId

	names   *NamePool
	opts    Options
	timeNow func() time.Time
	pick    func(n int) int
}

// NewRegistry constructs a Registry with the supplied options. Non-positive
// limits fall back to the defaults.
func NewRegistry(opts Options) *Registry {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MaxMembersPerSession <= 0 {
		opts.MaxMembersPerSession = DefaultMaxMembersPerSession
	}
	return &Registry{
		sessions:    make(map[string]*session),
		connIndex:   make(map[string]string),
		memberIndex: make(map[string]string),
		names:       NewNamePool(),
		opts:        opts,
		timeNow:     time.Now,
		pick:        rand.IntN,
	}
}

// Options returns the limits the registry was built with.
func (r *Registry) Options() Options {
	return r.opts
}

// CreateSession registers a new session with the caller as its authority.
// It fails with ErrAlreadyInSession when the connection is bound to a live
// session and with ErrCapacityReached when MaxSessions are live.
func (r *Registry) CreateSession(connectionID string, aspectRatio float64) (*Session, *Member, error) {
	now := r.timeNow()
	ratio := clampAspectRatio(aspectRatio)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, bound := r.connIndex[connectionID]; bound {
		return nil, nil, ErrAlreadyInSession
	}
	if len(r.sessions) >= r.opts.MaxSessions {
		return nil, nil, ErrCapacityReached
	}

	name := r.names.Allocate(r.usedNames())

	sess := &session{
		id:          uuid.NewString(),
		name:        name,
		createdAt:   now,
		aspectRatio: ratio,
		version:     1,
		members:     make(map[string]*member),
	}
	mem := &member{
		id:           uuid.NewString(),
		connectionID: connectionID,
		role:         RoleAuthority,
		joinedAt:     now,
	}

	sess.members[mem.id] = mem
	r.sessions[sess.id] = sess
	r.connIndex[connectionID] = mem.id
	r.memberIndex[mem.id] = sess.id

	return sess.snapshot(), &Member{
		ID:           mem.id,
		ConnectionID: connectionID,
		SessionID:    sess.id,
		Role:         RoleAuthority,
		JoinedAt:     now,
	}, nil
}

// JoinSession adds the connection to an existing session as a participant.
func (r *Registry) JoinSession(sessionID, connectionID string) (*Session, *Member, error) {
	now := r.timeNow()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, bound := r.connIndex[connectionID]; bound {
		return nil, nil, ErrAlreadyInSession
	}
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	if len(sess.members) >= r.opts.MaxMembersPerSession {
		return nil, nil, ErrSessionFull
	}

	mem := &member{
		id:           uuid.NewString(),
		connectionID: connectionID,
		role:         RoleParticipant,
		joinedAt:     now,
	}
	sess.members[mem.id] = mem
	r.connIndex[connectionID] = mem.id
	r.memberIndex[mem.id] = sessionID

	return sess.snapshot(), &Member{
		ID:           mem.id,
		ConnectionID: connectionID,
		SessionID:    sessionID,
		Role:         RoleParticipant,
		JoinedAt:     now,
	}, nil
}

// LeaveSession removes the member bound to the connection, promotes a new
// authority when the departing member held the role and participants
// remain, and destroys the session once empty. It returns nil when the
// connection is not bound, which makes a transport disconnect after an
// explicit leave a no-op.
func (r *Registry) LeaveSession(connectionID string) *Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	memberID, ok := r.connIndex[connectionID]
	if !ok {
		return nil
	}
	sessionID := r.memberIndex[memberID]
	delete(r.connIndex, connectionID)
	delete(r.memberIndex, memberID)

	sess, ok := r.sessions[sessionID]
	if !ok {
		logger.WithModule("lobby").Error("member index references missing session",
			zap.String("member_id", memberID),
			zap.String("session_id", sessionID),
		)
		return nil
	}

	departed, ok := sess.members[memberID]
	if !ok {
		logger.WithModule("lobby").Error("connection index references missing member",
			zap.String("member_id", memberID),
			zap.String("session_id", sessionID),
		)
	}
	delete(sess.members, memberID)

	dep := &Departure{
		SessionID:   sessionID,
		SessionName: sess.name,
		MemberID:    memberID,
	}

	if len(sess.members) == 0 {
		delete(r.sessions, sessionID)
		dep.SessionDestroyed = true
		return dep
	}

	if departed != nil && departed.role == RoleAuthority {
		dep.Promoted = r.promote(sess)
	}
	dep.RemainingMemberIDs = remainingIDs(sess)

	return dep
}

// StartGame flips the session's started flag. The caller must be bound to a
// live session, hold the authority role and the game must not have started.
func (r *Registry) StartGame(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberID, ok := r.connIndex[connectionID]
	if !ok {
		return "", false
	}
	sess, ok := r.sessions[r.memberIndex[memberID]]
	if !ok {
		return "", false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	m, ok := sess.members[memberID]
	if !ok || m.role != RoleAuthority || sess.gameStarted {
		return "", false
	}
	sess.gameStarted = true
	return sess.id, true
}

// GetSession returns a snapshot of the identified session.
func (r *Registry) GetSession(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return sess.snapshot(), true
}

// GetMemberByConnection resolves the member bound to a connection.
func (r *Registry) GetMemberByConnection(connectionID string) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberID, ok := r.connIndex[connectionID]
	if !ok {
		return nil, false
	}
	sess, ok := r.sessions[r.memberIndex[memberID]]
	if !ok {
		return nil, false
	}
	return sess.memberSnapshot(memberID)
}

// GetSessionByConnection resolves the session the connection is a member of.
func (r *Registry) GetSessionByConnection(connectionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberID, ok := r.connIndex[connectionID]
	if !ok {
		return nil, false
	}
	sess, ok := r.sessions[r.memberIndex[memberID]]
	if !ok {
		return nil, false
	}
	return sess.snapshot(), true
}

// ListActiveSessions returns a snapshot of live sessions sorted by creation
// time descending.
func (r *Registry) ListActiveSessions() SessionList {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]SessionSummary, 0, len(r.sessions))
	for _, sess := range r.sessions {
		summaries = append(summaries, sess.summary(r.opts.MaxMembersPerSession))
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return SessionList{
		Sessions:         summaries,
		MaxSessions:      r.opts.MaxSessions,
		CanCreateSession: len(r.sessions) < r.opts.MaxSessions,
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionExists reports whether the session is live.
func (r *Registry) SessionExists(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// IsMember reports whether the member belongs to the session.
func (r *Registry) IsMember(sessionID, memberID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	_, ok = sess.members[memberID]
	return ok
}

// promote elects a new authority uniformly at random among the survivors.
// The caller holds the registry write lock; the session mutex serialises
// the role flip against snapshot readers and double-checks that no
// authority survived the departure.
func (r *Registry) promote(sess *session) *PromotedMember {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	candidates := make([]*member, 0, len(sess.members))
	for _, m := range sess.members {
		if m.role == RoleAuthority {
			return nil
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].joinedAt.Equal(candidates[j].joinedAt) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].joinedAt.Before(candidates[j].joinedAt)
	})

	chosen := candidates[r.pick(len(candidates))]
	chosen.role = RoleAuthority
	sess.version++

	return &PromotedMember{MemberID: chosen.id, Role: RoleAuthority}
}

// remainingIDs lists the surviving members, authority first, then by join
// time. The caller must hold the registry lock.
func remainingIDs(sess *session) []string {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	members := make([]*member, 0, len(sess.members))
	for _, m := range sess.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if (members[i].role == RoleAuthority) != (members[j].role == RoleAuthority) {
			return members[i].role == RoleAuthority
		}
		if !members[i].joinedAt.Equal(members[j].joinedAt) {
			return members[i].joinedAt.Before(members[j].joinedAt)
		}
		return members[i].id < members[j].id
	})

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.id
	}
	return ids
}

// usedNames collects the names of live sessions. The caller must hold the
// registry lock.
func (r *Registry) usedNames() map[string]struct{} {
	used := make(map[string]struct{}, len(r.sessions))
	for _, sess := range r.sessions {
		used[sess.name] = struct{}{}
	}
	return used
}

// clampAspectRatio bounds ratio to [0.25, 4.0]. Non-finite values collapse
// to 1.0.
func clampAspectRatio(ratio float64) float64 {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 1.0
	}
	return math.Min(math.Max(ratio, minAspectRatio), maxAspectRatio)
}
