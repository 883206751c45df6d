package ws

import (
	"encoding/json"
	"log"
	"time"
)

// Store is the persistence boundary the hub talks to. RoomExists gates the
// join handshake; PersistCode is best-effort and must never block the run
// loop — a persistence failure does not reject or roll back an edit.
type Store interface {
	RoomExists(roomID string) bool
	PersistCode(roomID, code string)
}

// Hub owns the room registry and serializes every join, edit and leave
// together with its matching broadcast in a single run loop, so all members
// of a room observe events in the same order they were applied.
type Hub struct {
	registry *Registry
	store    Store

	// Register requests from newly accepted connections
	register chan *Client

	// Unregister requests from closing connections
	unregister chan *Client

	// Accepted edits from clients
	edits chan *edit
}

type edit struct {
	sender *Client
	code   string
}

func NewHub(store Store) *Hub {
	return &Hub{
		registry:   NewRegistry(),
		store:      store,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		edits:      make(chan *edit),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case e := <-h.edits:
			h.applyEdit(e)
		}
	}
}

// addClient joins the client to its room, pushes the current buffer and
// roster to it directly, then announces the join to everyone else.
func (h *Hub) addClient(c *Client) {
	code, users := h.registry.Join(c.roomID, c)

	init, _ := json.Marshal(initMessage{
		Type:  TypeInit,
		Code:  code,
		Users: users,
	})
	if !h.trySend(c, init) {
		// The connection is dead on arrival; unwind the join without
		// ever announcing it.
		h.removeClient(c)
		return
	}

	log.Printf("%s joined room %s (total: %d)", c.userID, c.roomID, len(users))

	h.broadcast(c.roomID, presenceMessage{
		Type:   TypeUserJoined,
		UserID: c.userID,
		Users:  users,
	}, c)
}

// removeClient is the single close path, reached from the connection's own
// read loop and from failed broadcast deliveries alike. The registry's
// removed result makes a second invocation a no-op, so the send channel is
// closed exactly once.
func (h *Hub) removeClient(c *Client) {
	users, empty, removed := h.registry.Leave(c.roomID, c)
	if !removed {
		return
	}
	close(c.send)

	if empty {
		log.Printf("Room %s closed (empty)", c.roomID)
		return
	}

	log.Printf("%s left room %s (remaining: %d)", c.userID, c.roomID, len(users))

	h.broadcast(c.roomID, presenceMessage{
		Type:   TypeUserLeft,
		UserID: c.userID,
		Users:  users,
	}, nil)
}

// applyEdit stores the new buffer, hands it to the persistence writer and
// fans it out to the rest of the room.
func (h *Hub) applyEdit(e *edit) {
	c := e.sender
	if !h.registry.Contains(c.roomID, c) {
		// The sender was already removed, e.g. by a failed delivery.
		return
	}

	h.registry.SetCode(c.roomID, e.code)

	if h.store != nil {
		h.store.PersistCode(c.roomID, e.code)
	}

	h.broadcast(c.roomID, codeUpdateMessage{
		Type:      TypeCodeUpdate,
		Code:      e.code,
		UserID:    c.userID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, c)
}

// broadcast delivers msg to every member of roomID except exclude. Delivery
// is independent per recipient: a failure marks that recipient disconnected
// without aborting the remaining sends. Failed recipients are removed only
// after the loop, so the departure broadcasts they trigger cannot close a
// send channel this iteration still has ahead of it.
func (h *Hub) broadcast(roomID string, msg any, exclude *Client) {
	data, _ := json.Marshal(msg)
	var failed []*Client
	for _, c := range h.registry.Clients(roomID) {
		if c == exclude {
			continue
		}
		if !h.trySend(c, data) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.removeClient(c)
	}
}

// trySend reports whether the message was handed to the client's writer.
// A full send channel means the client stalled or its write pump died;
// either way the first failed send is terminal for that connection, and
// the caller owes it a removeClient.
func (h *Hub) trySend(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) GetRoomCount() int {
	return h.registry.RoomCount()
}

func (h *Hub) GetClientCount() int {
	return h.registry.ClientCount()
}

func (h *Hub) GetActiveRooms() map[string]int {
	return h.registry.ActiveRooms()
}
