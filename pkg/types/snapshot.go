package types

// GET /dashboard (moderator cookie required):
//   status: "ok"
//   game_id: string // "" when no session exists yet
//   state: "CLOSED" | "OPEN" | "READY" | "IN_PROGRESS" | "ENDED"
//   waiting_count: number
//   player1_id, player2_id: string // once seated
//   chosen_card: number
//   eliminated: number[]
//   urls: { player1, player2, moderator } // once both seats are filled
//
// GET /join/status?participant_id=:
//   status: "closed" | "open" | "ready" | "in_game"
//   game_id: string
//   role: string // ready and in_game only
//   waiting_count: number // open only
//   message: string
//
// Errors from any JSON endpoint:
//   status: "error"
//   message: string
//   kind: string
