package room

import (
	"hash/fnv"
	"sync"
)

// Key builders. Rooms are either outlet-wide or scoped to a single order.

func OutletKey(outletID string) string { return "outlet:" + outletID }
func OrderKey(orderID string) string  { return "order:" + orderID }

const shardCount = 16

// Registry maps room keys to the set of subscribed session ids. Rooms are
// created implicitly on first join and deleted when their set empties.
// Membership is sharded by room key so fan-out on one outlet does not
// serialize against unrelated outlets.
type Registry struct {
	shards [shardCount]shard

	// Reverse index: session id -> joined room keys. Keeps PurgeSession
	// proportional to the rooms the session actually joined.
	smu      sync.Mutex
	sessions map[string]map[string]struct{}
}

type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{
		sessions: make(map[string]map[string]struct{}),
	}
	for i := range r.shards {
		r.shards[i].rooms = make(map[string]map[string]struct{})
	}
	return r
}

func (r *Registry) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &r.shards[h.Sum32()%shardCount]
}

// Join adds the session to the room, creating the room if absent.
// Idempotent. Returns true when this join created the room.
func (r *Registry) Join(sessionID, key string) bool {
	s := r.shardFor(key)

	s.mu.Lock()
	members, ok := s.rooms[key]
	if !ok {
		members = make(map[string]struct{})
		s.rooms[key] = members
	}
	members[sessionID] = struct{}{}
	s.mu.Unlock()

	r.smu.Lock()
	joined, found := r.sessions[sessionID]
	if !found {
		joined = make(map[string]struct{})
		r.sessions[sessionID] = joined
	}
	joined[key] = struct{}{}
	r.smu.Unlock()

	return !ok
}

// Leave removes the session from the room, deleting the room when its set
// becomes empty. Idempotent. Returns true when the room was deleted.
func (r *Registry) Leave(sessionID, key string) bool {
	s := r.shardFor(key)

	s.mu.Lock()
	emptied := false
	if members, ok := s.rooms[key]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(s.rooms, key)
			emptied = true
		}
	}
	s.mu.Unlock()

	r.smu.Lock()
	if joined, ok := r.sessions[sessionID]; ok {
		delete(joined, key)
		if len(joined) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	r.smu.Unlock()

	return emptied
}

// Members returns a snapshot of the room's member set. Callers fan out
// against the snapshot without holding any registry lock.
func (r *Registry) Members(key string) []string {
	s := r.shardFor(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.rooms[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// SessionRooms returns the rooms the session currently belongs to.
func (r *Registry) SessionRooms(sessionID string) []string {
	r.smu.Lock()
	defer r.smu.Unlock()

	joined, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(joined))
	for key := range joined {
		out = append(out, key)
	}
	return out
}

// PurgeSession removes the session from every room it joined and returns
// the keys of rooms that became empty. Safe to call more than once.
func (r *Registry) PurgeSession(sessionID string) []string {
	r.smu.Lock()
	joined, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.smu.Unlock()

	if !ok {
		return nil
	}

	var emptied []string
	for key := range joined {
		s := r.shardFor(key)
		s.mu.Lock()
		if members, exists := s.rooms[key]; exists {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(s.rooms, key)
				emptied = append(emptied, key)
			}
		}
		s.mu.Unlock()
	}
	return emptied
}

// RoomCount returns the number of live rooms, for stats logging.
func (r *Registry) RoomCount() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.rooms)
		s.mu.RUnlock()
	}
	return n
}
