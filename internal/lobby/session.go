package lobby

import (
	"sort"
	"sync"
	"time"
)

// Role identifies a member's standing within a session.
type Role string

const (
	// RoleAuthority marks the single member the others defer to for
	// authoritative game state.
	RoleAuthority Role = "authority"

	// RoleParticipant marks every other member.
	RoleParticipant Role = "participant"
)

// member is the live record for a connected session member. The registry
// lock guards its place in the session's member table; the session state
// mutex guards role changes.
type member struct {
	id           string
	connectionID string
	role         Role
	joinedAt     time.Time
}

// session is the live record for a lobby session. The registry lock guards
// the members table structure; mu guards roles, the version counter and the
// game flag, so readers holding only the registry read lock stay consistent
// with StartGame and promotion.
type session struct {
	id          string
	name        string
	createdAt   time.Time
	aspectRatio float64

	mu          sync.Mutex
	members     map[string]*member
	version     int64
	gameStarted bool
}

// Member is a point-in-time copy of a live session member.
type Member struct {
	ID           string    `json:"memberId"`
	ConnectionID string    `json:"-"`
	SessionID    string    `json:"-"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Session is a point-in-time copy of a live session. Members are ordered by
// join time.
type Session struct {
	ID          string    `json:"sessionId"`
	Name        string    `json:"sessionName"`
	CreatedAt   time.Time `json:"createdAt"`
	AspectRatio float64   `json:"aspectRatio"`
	GameStarted bool      `json:"gameStarted"`
	Version     int64     `json:"version"`
	Members     []Member  `json:"members"`
}

// SessionSummary is the list-view projection of a live session.
type SessionSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MemberCount int       `json:"memberCount"`
	MaxMembers  int       `json:"maxMembers"`
	CreatedAt   time.Time `json:"createdAt"`
	GameStarted bool      `json:"gameStarted"`
}

// SessionList is the snapshot returned to session browsers.
type SessionList struct {
	Sessions         []SessionSummary `json:"sessions"`
	MaxSessions      int              `json:"maxSessions"`
	CanCreateSession bool             `json:"canCreateSession"`
}

// PromotedMember describes the participant promoted to authority after the
// previous authority departed.
type PromotedMember struct {
	MemberID string `json:"memberId"`
	Role     Role   `json:"role"`
}

// Departure describes the consequences of removing a member. Promoted is
// nil when no promotion occurred. RemainingMemberIDs lists the survivors
// with the authority first, then by join time; ownership migration assigns
// orphaned objects starting at index 0.
type Departure struct {
	SessionID          string
	SessionName        string
	MemberID           string
	SessionDestroyed   bool
	Promoted           *PromotedMember
	RemainingMemberIDs []string
}

// snapshot copies the session. The caller must hold the registry lock so
// the members table cannot change underneath it.
func (s *session) snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, Member{
			ID:           m.id,
			ConnectionID: m.connectionID,
			SessionID:    s.id,
			Role:         m.role,
			JoinedAt:     m.joinedAt,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})

	return &Session{
		ID:          s.id,
		Name:        s.name,
		CreatedAt:   s.createdAt,
		AspectRatio: s.aspectRatio,
		GameStarted: s.gameStarted,
		Version:     s.version,
		Members:     members,
	}
}

// memberSnapshot copies a single member. The caller must hold the registry
// lock.
func (s *session) memberSnapshot(memberID string) (*Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[memberID]
	if !ok {
		return nil, false
	}
	return &Member{
		ID:           m.id,
		ConnectionID: m.connectionID,
		SessionID:    s.id,
		Role:         m.role,
		JoinedAt:     m.joinedAt,
	}, true
}

// summary builds the list-view projection. The caller must hold the
// registry lock.
func (s *session) summary(maxMembers int) SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionSummary{
		ID:          s.id,
		Name:        s.name,
		MemberCount: len(s.members),
		MaxMembers:  maxMembers,
		CreatedAt:   s.createdAt,
		GameStarted: s.gameStarted,
	}
}
