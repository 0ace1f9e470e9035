package engine

import "slices"

// NeedsFreshSession reports whether opening entry must mint a new session id
// rather than re-asserting the existing one.
func NeedsFreshSession(s Session) bool {
	return !slices.Contains(allowedFrom[CmdOpen], s.State)
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func HasArrival(s Session, participantID string) bool {
	return slices.ContainsFunc(s.Waiting, func(a Arrival) bool {
		return a.ParticipantID == participantID
	})
}

// SeatOf returns the player role held by participantID, if any.
func SeatOf(s Session, participantID string) (Role, bool) {
	if participantID == "" || !seatedStates[s.State] {
		return "", false
	}
	switch participantID {
	case s.Player1ID:
		return RolePlayer1, true
	case s.Player2ID:
		return RolePlayer2, true
	}
	return "", false
}

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RolePlayer1, RolePlayer2, RoleModerator:
		return Role(raw), true
	default:
		return "", false
	}
}

func ValidCard(card int) bool {
	return card >= 1 && card <= CardCount
}
