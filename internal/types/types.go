package types

import "encoding/json"

// Client -> server message types.
const (
	ClientJoin         = "join"
	ClientChat         = "chat"
	ClientVoiceJoin    = "voice_join"
	ClientWebRTCSignal = "webrtc_signal"
)

// Server -> client message types.
const (
	ServerJoin          = "join"
	ServerChat          = "chat"
	ServerEliminate     = "eliminate"
	ServerPeersList     = "peers_list"
	ServerNewPeerJoined = "new_peer_joined"
	ServerPeerLeft      = "peer_left"
	ServerWebRTCSignal  = "webrtc_signal"
	ServerSystem        = "system"
	ServerError         = "error"
)

type ClientMessage struct {
	Type          string          `json:"type"`
	GameID        string          `json:"game_id,omitempty"`
	Role          string          `json:"role,omitempty"`
	ParticipantID string          `json:"participant_id,omitempty"`
	Text          string          `json:"text,omitempty"`
	ClientID      string          `json:"client_id,omitempty"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

type Peer struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

type ServerMessage struct {
	Type       string          `json:"type"`
	GameID     string          `json:"game_id,omitempty"`
	Role       string          `json:"role,omitempty"`
	Text       string          `json:"text,omitempty"`
	Card       int             `json:"card,omitempty"`
	Eliminated []int           `json:"eliminated,omitempty"`
	ClientID   string          `json:"client_id,omitempty"`
	Peers      []Peer          `json:"peers,omitempty"`
	From       string          `json:"from,omitempty"`
	To         string          `json:"to,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	// Replay marks a join that happened before this connection subscribed.
	Replay bool   `json:"replay,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}
