package lobby

import (
	"math/rand/v2"
	"strconv"
	"sync"
)

// sessionNames is the candidate pool for human-readable session names.
var sessionNames = [...]string{
	"Apple", "Apricot", "Avocado", "Banana", "Blackberry",
	"Blueberry", "Cantaloupe", "Cherry", "Clementine", "Coconut",
	"Cranberry", "Currant", "Date", "Dragonfruit", "Durian",
	"Elderberry", "Feijoa", "Fig", "Gooseberry", "Grape",
	"Grapefruit", "Guava", "Honeydew", "Jackfruit", "Kiwi",
	"Kumquat", "Lemon", "Lime", "Lychee", "Mandarin",
	"Mango", "Mulberry", "Nectarine", "Orange", "Papaya",
	"Passionfruit", "Peach", "Pear", "Persimmon", "Pineapple",
	"Plantain", "Plum", "Pomegranate", "Pomelo", "Quince",
	"Raspberry", "Starfruit", "Strawberry", "Tamarind", "Tangerine",
}

// NamePool hands out session names that are unique among the names currently
// in use. Allocation is serialised by its own mutex so concurrent creates
// cannot pick the same name; the authoritative used set is derived from the
// live registry at allocation time.
type NamePool struct {
	mu   sync.Mutex
	pick func(n int) int
}

// NewNamePool constructs a NamePool backed by the package name list.
func NewNamePool() *NamePool {
	return &NamePool{pick: rand.IntN}
}

// Allocate returns a random name absent from used. Once every pool name is
// taken it retries with numeric suffixes 2, 3, ... exhausting each suffix
// level before moving to the next, so a free name is always found.
func (p *NamePool) Allocate(used map[string]struct{}) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := make([]string, 0, len(sessionNames))
	for _, name := range sessionNames {
		if _, taken := used[name]; !taken {
			free = append(free, name)
		}
	}
	if len(free) > 0 {
		return free[p.pick(len(free))]
	}

	for suffix := 2; ; suffix++ {
		free = free[:0]
		for _, name := range sessionNames {
			candidate := name + strconv.Itoa(suffix)
			if _, taken := used[candidate]; !taken {
				free = append(free, candidate)
			}
		}
		if len(free) > 0 {
			return free[p.pick(len(free))]
		}
	}
}
