package ws

import "sync"

// Registry is the authoritative in-memory view of live rooms: the current
// text buffer and the connections editing it. A room exists here if and only
// if it has at least one member; the entry is created on the first join and
// dropped together with its buffer the moment the last member leaves.
type Registry struct {
	rooms map[string]*roomState
	mu    sync.RWMutex
}

type roomState struct {
	code    string
	members []*Client // kept in join order
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*roomState),
	}
}

// Join registers the client under roomID, creating the room with an empty
// buffer if needed. Returns the current buffer and the roster including the
// new client.
func (r *Registry) Join(roomID string, c *Client) (string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = &roomState{}
		r.rooms[roomID] = room
	}
	room.members = append(room.members, c)
	return room.code, room.labels()
}

// Leave removes the client. The room entry, buffer included, is dropped in
// the same step when the member set becomes empty. Removing a client that is
// not a member is a no-op; removed reports whether this call did anything.
func (r *Registry) Leave(roomID string, c *Client) (users []string, empty bool, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, true, false
	}
	for i, m := range room.members {
		if m == c {
			room.members = append(room.members[:i], room.members[i+1:]...)
			removed = true
			break
		}
	}
	if len(room.members) == 0 {
		delete(r.rooms, roomID)
		return nil, true, removed
	}
	return room.labels(), false, removed
}

// SetCode overwrites the room's buffer. Silently ignored when the room no
// longer exists, which covers an edit racing the departure of the last member.
func (r *Registry) SetCode(roomID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		room.code = code
	}
}

// Code returns the room's current buffer.
func (r *Registry) Code(roomID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	return room.code, true
}

// Members returns a join-ordered snapshot of member labels. Two connections
// may share a label, in which case it appears twice.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return room.labels()
}

// Clients returns a snapshot of member connections for broadcasting.
func (r *Registry) Clients(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	clients := make([]*Client, len(room.members))
	copy(clients, room.members)
	return clients
}

// Contains reports whether c is currently a member of roomID.
func (r *Registry) Contains(roomID string, c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	for _, m := range room.members {
		if m == c {
			return true
		}
	}
	return false
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, room := range r.rooms {
		count += len(room.members)
	}
	return count
}

// ActiveRooms maps each live room ID to its member count.
func (r *Registry) ActiveRooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make(map[string]int, len(r.rooms))
	for id, room := range r.rooms {
		active[id] = len(room.members)
	}
	return active
}

func (room *roomState) labels() []string {
	users := make([]string, len(room.members))
	for i, m := range room.members {
		users[i] = m.userID
	}
	return users
}
