package types

// Websocket protocol on GET /ws. Every frame is one JSON object with a
// "type" field. Go definitions live in internal/types.

// Client -> Server
// join:
//   game_id: string
//   role: "player1" | "player2" | "moderator"
//   participant_id: string // optional; binds on first use
//
// chat:
//   game_id: string
//   role: string
//   participant_id: string // optional
//   text: string // may be empty
//
// voice_join:
//   game_id: string
//   role: string
//   participant_id: string // optional
//   client_id: string // the caller's voice peer id
//
// webrtc_signal:
//   game_id: string
//   role: string
//   participant_id: string // optional
//   from: string
//   to: string
//   payload: object // SDP description or ICE candidate, relayed untouched

// Server -> Client
// join:
//   game_id: string
//   role: string
//   text: "<role> joined"
//   replay: boolean // true for roles that were present before you joined
//
// chat:
//   game_id, role, text
//
// eliminate:
//   game_id: string
//   role: string
//   card: number
//   eliminated: number[] // full set, ascending
//
// peers_list (reply to voice_join):
//   game_id: string
//   peers: { client_id: string, role: string }[] // omitted when empty
//
// new_peer_joined / peer_left:
//   client_id: string
//   role: string
//
// webrtc_signal:
//   game_id, role, from, to, payload
//
// system:
//   game_id: string
//   text: string // lifecycle notices, e.g. "Game started"
//
// error:
//   error: string
//   kind: "validation" | "role_binding" | "internal" | ...
