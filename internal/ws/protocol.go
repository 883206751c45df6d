package ws

// Message type strings forming the wire contract with the editor frontend.
const (
	TypeCodeChange = "code_change"
	TypeInit       = "init"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeCodeUpdate = "code_update"
)

// Inbound frame from a client. Anything that is not a well-formed
// code_change gets dropped without closing the connection.
type clientMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// Sent directly to a client right after it joins, never broadcast.
type initMessage struct {
	Type  string   `json:"type"`
	Code  string   `json:"code"`
	Users []string `json:"users"`
}

// Announces a roster change (user_joined / user_left) to a room.
type presenceMessage struct {
	Type   string   `json:"type"`
	UserID string   `json:"userId"`
	Users  []string `json:"users"`
}

// Carries an accepted edit to everyone in the room except its author.
type codeUpdateMessage struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}
