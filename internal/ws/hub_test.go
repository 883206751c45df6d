package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for the persistence collaborator.
type fakeStore struct {
	rooms map[string]bool
	saved map[string]string
	mu    sync.Mutex
}

func newFakeStore(rooms ...string) *fakeStore {
	f := &fakeStore{
		rooms: make(map[string]bool),
		saved: make(map[string]string),
	}
	for _, id := range rooms {
		f.rooms[id] = true
	}
	return f
}

func (f *fakeStore) RoomExists(roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[roomID]
}

func (f *fakeStore) PersistCode(roomID, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[roomID] = code
}

func (f *fakeStore) lastSaved(roomID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[roomID]
}

func decodeMessage(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// recvOne pops the next buffered message for a client, failing if none is
// pending.
func recvOne(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return decodeMessage(t, data)
	default:
		t.Fatal("expected a pending message")
		return nil
	}
}

// drainClient discards everything currently buffered for a client.
func drainClient(c *Client) {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected message: %s", data)
		}
	default:
	}
}

// recvWait blocks for the next message, for tests that go through the run
// loop instead of calling the handlers directly.
func recvWait(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return decodeMessage(t, data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func userList(t *testing.T, msg map[string]any) []string {
	t.Helper()
	raw, ok := msg["users"].([]any)
	require.True(t, ok, "message has no users list: %v", msg)
	users := make([]string, len(raw))
	for i, u := range raw {
		users[i] = u.(string)
	}
	return users
}

// The tests below drive the hub's handlers directly; in production the run
// loop invokes the same methods one event at a time.

func TestHubJoinInitAndAnnounce(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	a := newTestClient("A", "abcd1234")
	b := newTestClient("B", "abcd1234")

	hub.addClient(a)

	init := recvOne(t, a)
	assert.Equal(t, TypeInit, init["type"])
	assert.Equal(t, "", init["code"])
	assert.Equal(t, []string{"A"}, userList(t, init))

	hub.addClient(b)

	// B gets its own init directly, not a broadcast.
	init = recvOne(t, b)
	assert.Equal(t, TypeInit, init["type"])
	assert.Equal(t, []string{"A", "B"}, userList(t, init))

	// A is told about B with the updated roster.
	joined := recvOne(t, a)
	assert.Equal(t, TypeUserJoined, joined["type"])
	assert.Equal(t, "B", joined["userId"])
	assert.Equal(t, []string{"A", "B"}, userList(t, joined))
	assertNoMessage(t, b)
}

func TestHubEditBroadcastExcludesSender(t *testing.T) {
	store := newFakeStore("abcd1234")
	hub := NewHub(store)
	a := newTestClient("A", "abcd1234")
	b := newTestClient("B", "abcd1234")
	hub.addClient(a)
	hub.addClient(b)
	drainClient(a)
	drainClient(b)

	hub.applyEdit(&edit{sender: a, code: "x=1"})

	update := recvOne(t, b)
	assert.Equal(t, TypeCodeUpdate, update["type"])
	assert.Equal(t, "x=1", update["code"])
	assert.Equal(t, "A", update["userId"])
	_, err := time.Parse(time.RFC3339, update["timestamp"].(string))
	assert.NoError(t, err, "timestamp must be ISO-8601")

	// The author hears nothing back.
	assertNoMessage(t, a)

	code, ok := hub.registry.Code("abcd1234")
	require.True(t, ok)
	assert.Equal(t, "x=1", code)
	assert.Equal(t, "x=1", store.lastSaved("abcd1234"))
}

func TestHubLateJoinerReceivesBuffer(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	a := newTestClient("A", "abcd1234")
	b := newTestClient("B", "abcd1234")
	c := newTestClient("C", "abcd1234")
	hub.addClient(a)
	hub.addClient(b)
	hub.applyEdit(&edit{sender: a, code: "x=1"})
	drainClient(a)
	drainClient(b)

	hub.addClient(c)

	init := recvOne(t, c)
	assert.Equal(t, TypeInit, init["type"])
	assert.Equal(t, "x=1", init["code"])
	assert.Equal(t, []string{"A", "B", "C"}, userList(t, init))

	for _, existing := range []*Client{a, b} {
		joined := recvOne(t, existing)
		assert.Equal(t, TypeUserJoined, joined["type"])
		assert.Equal(t, "C", joined["userId"])
		assert.Equal(t, []string{"A", "B", "C"}, userList(t, joined))
	}
}

func TestHubFailedDeliveryRemovesRecipient(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	a := newTestClient("A", "abcd1234")
	b := newTestClient("B", "abcd1234")
	b.send = make(chan []byte, 1)
	c := newTestClient("C", "abcd1234")
	hub.addClient(a)
	hub.addClient(b)
	drainClient(b) // consume B's init so the next message fits
	hub.addClient(c)
	drainClient(a)
	drainClient(c)
	// B's single slot now holds the unread user_joined for C.

	hub.applyEdit(&edit{sender: a, code: "x=1"})

	// B stalled: it gets removed and the rest of the room is told.
	assert.False(t, hub.registry.Contains("abcd1234", b))
	assert.Equal(t, []string{"A", "C"}, hub.registry.Members("abcd1234"))

	left := recvOne(t, a)
	assert.Equal(t, TypeUserLeft, left["type"])
	assert.Equal(t, "B", left["userId"])
	assert.Equal(t, []string{"A", "C"}, userList(t, left))
	assertNoMessage(t, a)

	// C got the edit that B missed, then word of B's departure.
	update := recvOne(t, c)
	assert.Equal(t, TypeCodeUpdate, update["type"])
	assert.Equal(t, "x=1", update["code"])

	left = recvOne(t, c)
	assert.Equal(t, TypeUserLeft, left["type"])
	assert.Equal(t, "B", left["userId"])

	// B's channel holds its stale message and is then closed; no edit or
	// departure notice ever reached it.
	stale := recvOne(t, b)
	assert.Equal(t, TypeUserJoined, stale["type"])
	_, ok := <-b.send
	assert.False(t, ok, "B's send channel should be closed")

	// A follow-up edit reaches only C.
	hub.applyEdit(&edit{sender: a, code: "x=2"})
	update = recvOne(t, c)
	assert.Equal(t, "x=2", update["code"])
	assertNoMessage(t, a)
}

func TestHubEditWithTwoStalledRecipients(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	s := newTestClient("S", "abcd1234")
	b := newTestClient("B", "abcd1234")
	b.send = make(chan []byte, 1)
	c := newTestClient("C", "abcd1234")
	c.send = make(chan []byte, 1)
	hub.addClient(s)
	hub.addClient(b)
	drainClient(b)
	hub.addClient(c)
	drainClient(b)
	drainClient(c)
	drainClient(s)

	// Both B and C stall with a full buffer before the next edit lands.
	b.send <- []byte("stalled")
	c.send <- []byte("stalled")

	// One fan-out now fails for two members of the same snapshot; the
	// second failure must not blow up the pass cleaning up the first.
	hub.applyEdit(&edit{sender: s, code: "x=1"})

	assert.Equal(t, []string{"S"}, hub.registry.Members("abcd1234"))

	left := recvOne(t, s)
	assert.Equal(t, TypeUserLeft, left["type"])
	assert.Equal(t, "B", left["userId"])
	assert.Equal(t, []string{"S", "C"}, userList(t, left))

	left = recvOne(t, s)
	assert.Equal(t, TypeUserLeft, left["type"])
	assert.Equal(t, "C", left["userId"])
	assert.Equal(t, []string{"S"}, userList(t, left))
	assertNoMessage(t, s)

	// Each stalled channel holds only its pre-stall message, then closes.
	for _, stalled := range []*Client{b, c} {
		assert.Equal(t, "stalled", string(<-stalled.send))
		_, ok := <-stalled.send
		assert.False(t, ok, "stalled client's send channel should be closed")
	}

	// The room keeps working for the survivor.
	hub.applyEdit(&edit{sender: s, code: "x=2"})
	code, ok := hub.registry.Code("abcd1234")
	require.True(t, ok)
	assert.Equal(t, "x=2", code)
}

func TestHubRemoveIdempotent(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	a := newTestClient("A", "abcd1234")
	b := newTestClient("B", "abcd1234")
	hub.addClient(a)
	hub.addClient(b)
	drainClient(a)
	drainClient(b)

	hub.removeClient(b)
	hub.removeClient(b) // read loop and failed broadcast may both report

	left := recvOne(t, a)
	assert.Equal(t, TypeUserLeft, left["type"])
	assert.Equal(t, "B", left["userId"])
	assertNoMessage(t, a)
	assert.Equal(t, []string{"A"}, hub.registry.Members("abcd1234"))
}

func TestHubLastLeaveDiscardsBuffer(t *testing.T) {
	hub := NewHub(newFakeStore("ffff0000"))
	d := newTestClient("D", "ffff0000")
	hub.addClient(d)
	hub.applyEdit(&edit{sender: d, code: "d's content"})

	hub.removeClient(d)
	assert.Equal(t, 0, hub.registry.RoomCount())

	// The next join starts from an empty in-memory buffer.
	e := newTestClient("E", "ffff0000")
	hub.addClient(e)
	init := recvOne(t, e)
	assert.Equal(t, "", init["code"])
}

func TestHubEditAfterRemovalIgnored(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	a := newTestClient("A", "abcd1234")
	b := newTestClient("B", "abcd1234")
	hub.addClient(a)
	hub.addClient(b)
	hub.removeClient(b)
	drainClient(a)

	hub.applyEdit(&edit{sender: b, code: "ghost edit"})

	code, ok := hub.registry.Code("abcd1234")
	require.True(t, ok)
	assert.Equal(t, "", code)
	assertNoMessage(t, a)
}

func TestHubInitDeliveryFailure(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	stalled := newTestClient("A", "abcd1234")
	stalled.send = make(chan []byte) // no writer, nothing can be delivered

	hub.addClient(stalled)

	// The failed initial push counts as a disconnect; no room state is left.
	assert.Equal(t, 0, hub.registry.RoomCount())
}

func TestHubRunLoop(t *testing.T) {
	hub := NewHub(newFakeStore("abcd1234"))
	go hub.Run()

	a := newTestClient("A", "abcd1234")
	b := newTestClient("B", "abcd1234")

	hub.register <- a
	hub.register <- b
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })

	hub.edits <- &edit{sender: a, code: "x=1"}

	// B sees its init first, then the edit.
	update := recvWait(t, b)
	for update["type"] != TypeCodeUpdate {
		update = recvWait(t, b)
	}
	assert.Equal(t, "x=1", update["code"])

	hub.unregister <- b
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })
	assert.Equal(t, map[string]int{"abcd1234": 1}, hub.GetActiveRooms())
}
