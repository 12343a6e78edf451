package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/menta2k/zone-annotator/internal/logger"
	"github.com/menta2k/zone-annotator/pkg/editor"
)

// DefaultMaxSessions caps how many editors can be open at once.
const DefaultMaxSessions = 256

// entry is one open editor and the notices it raised since the last response.
type entry struct {
	ID              string
	ConfigurationID string
	Shell           *editor.Shell

	mu      sync.Mutex
	notices []editor.Notice
}

func (e *entry) Notify(n editor.Notice) {
	e.mu.Lock()
	e.notices = append(e.notices, n)
	e.mu.Unlock()
}

// drain returns and clears the pending notices.
func (e *entry) drain() []editor.Notice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.notices
	e.notices = nil
	if out == nil {
		out = []editor.Notice{}
	}
	return out
}

// registry holds open editors. Idle editors expire after the TTL and are
// cancelled, which releases their media.
type registry struct {
	cache *expirable.LRU[string, *entry]
	log   *slog.Logger
}

func newRegistry(size int, ttl time.Duration, log *slog.Logger) *registry {
	if size <= 0 {
		size = DefaultMaxSessions
	}
	if log == nil {
		log = logger.Discard()
	}
	r := &registry{log: log}
	r.cache = expirable.NewLRU[string, *entry](size, r.evicted, ttl)
	return r
}

func (r *registry) evicted(id string, e *entry) {
	if e.Shell.Closed() {
		return
	}
	if err := e.Shell.Cancel(); err != nil {
		r.log.Debug("evicted session already closed", slog.String("session_id", id))
		return
	}
	r.log.Info("editor session expired", slog.String("session_id", id))
}

// newEntry allocates an entry with a fresh id. It is registered with add
// once its editor is open.
func (r *registry) newEntry(configurationID string) *entry {
	return &entry{ID: uuid.NewString(), ConfigurationID: configurationID}
}

func (r *registry) add(e *entry) {
	r.cache.Add(e.ID, e)
}

// get returns the entry and refreshes its expiry.
func (r *registry) get(id string) (*entry, bool) {
	e, ok := r.cache.Get(id)
	if ok {
		r.cache.Add(id, e)
	}
	return e, ok
}

func (r *registry) remove(id string) {
	r.cache.Remove(id)
}

func (r *registry) len() int {
	return r.cache.Len()
}

func (r *registry) purge() {
	r.cache.Purge()
}
