package photoactivation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nasa-jpl/photoactivation/util"
)

// claims holds the channels and lines in use by a run, across every
// sequencer in the process
var claims = struct {
	sync.Mutex
	held map[string]uuid.UUID
}{held: make(map[string]uuid.UUID)}

// claim takes every resource in names for owner, or none of them
func claim(owner uuid.UUID, names ...string) error {
	names = util.UniqueString(names)
	claims.Lock()
	defer claims.Unlock()
	var taken []string
	for _, n := range names {
		if o, ok := claims.held[n]; ok && o != owner {
			taken = append(taken, n)
		}
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: %s claimed by another run", ErrBusy, strings.Join(taken, ", "))
	}
	for _, n := range names {
		claims.held[n] = owner
	}
	return nil
}

// release frees every resource held by owner
func release(owner uuid.UUID) {
	claims.Lock()
	defer claims.Unlock()
	for n, o := range claims.held {
		if o == owner {
			delete(claims.held, n)
		}
	}
}
