package engine

import (
	"errors"
	"slices"
	"time"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
)

var ErrEntryClosed = errors.New("entry is not open")
var ErrCapacity = errors.New("waiting room is full")
var ErrNotReady = errors.New("session is not ready")
var ErrMissingPlayers = errors.New("player ids are not assigned")
var ErrNeedsFreshSession = errors.New("session cannot be reopened")
var ErrInvalidTransition = errors.New("invalid transition")
var ErrUnsupportedCommand = errors.New("unsupported command")

type State string

const (
	StateClosed     State = "CLOSED"
	StateOpen       State = "OPEN"
	StateReady      State = "READY"
	StateInProgress State = "IN_PROGRESS"
	StateEnded      State = "ENDED"
)

type Role string

const (
	RolePlayer1   Role = "player1"
	RolePlayer2   Role = "player2"
	RoleModerator Role = "moderator"
)

const (
	MaxWaiting = 2
	CardCount  = 12
)

type Arrival struct {
	ParticipantID string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`
}

type Session struct {
	ID         string
	State      State
	Waiting    []Arrival
	Player1ID  string
	Player2ID  string
	ChosenCard int
	CreatedAt  time.Time
}

type CommandType string

const (
	CmdOpen  CommandType = "Open"
	CmdClose CommandType = "Close"
	CmdAdmit CommandType = "Admit"
	CmdStart CommandType = "Start"
	CmdEnd   CommandType = "End"
	CmdReset CommandType = "Reset"
)

type Command struct {
	Type          CommandType
	ParticipantID string
	At            time.Time
}

type EventType string

const (
	EvtSessionCreated      EventType = "SessionCreated"
	EvtEntryOpened         EventType = "EntryOpened"
	EvtParticipantAdmitted EventType = "ParticipantAdmitted"
	EvtEntryClosed         EventType = "EntryClosed"
	EvtGameStarted         EventType = "GameStarted"
	EvtGameEnded           EventType = "GameEnded"
	EvtSessionReset        EventType = "SessionReset"
)

type Event struct {
	Type          EventType
	ParticipantID string
	Player1ID     string
	Player2ID     string
	Reason        string
}

// NewSession builds a session that is immediately open for entry.
func NewSession(id string, chosenCard int, now time.Time) (Session, []Event) {
	s := Session{
		ID:         id,
		State:      StateOpen,
		ChosenCard: chosenCard,
		CreatedAt:  now,
	}
	events := []Event{
		{Type: EvtSessionCreated},
		{Type: EvtEntryOpened, Reason: "session created"},
	}
	return s, events
}

func Apply(s Session, cmd Command) ([]Event, Session, error) {
	if !slices.Contains(allowedFrom[cmd.Type], s.State) {
		return nil, s, rejectTransition(s, cmd)
	}

	// Never share the waiting slice with the caller's copy.
	newState := s
	newState.Waiting = slices.Clone(s.Waiting)

	switch cmd.Type {
	case CmdOpen:
		if s.State == StateReady {
			// Both seats are taken; re-asserting entry must not unseat them.
			return []Event{{Type: EvtEntryOpened, Reason: "entry re-asserted while ready"}}, s, nil
		}
		return []Event{{Type: EvtEntryOpened, Reason: "entry re-opened"}}, newState, nil

	case CmdAdmit:
		if cmd.ParticipantID == "" {
			return nil, s, apperr.Validation("participant_id is required")
		}
		if HasArrival(s, cmd.ParticipantID) {
			return nil, s, nil
		}
		if len(s.Waiting) >= MaxWaiting {
			return nil, s, apperr.Wrap(apperr.KindStateConflict, ErrCapacity, "waiting room already has %d participants", len(s.Waiting))
		}

		newState.Waiting = append(newState.Waiting, Arrival{ParticipantID: cmd.ParticipantID, JoinedAt: cmd.At})
		events := []Event{{Type: EvtParticipantAdmitted, ParticipantID: cmd.ParticipantID}}

		if len(newState.Waiting) == MaxWaiting {
			newState.Player1ID = newState.Waiting[0].ParticipantID
			newState.Player2ID = newState.Waiting[1].ParticipantID
			newState.State = StateReady
			events = append(events, Event{
				Type:      EvtEntryClosed,
				Player1ID: newState.Player1ID,
				Player2ID: newState.Player2ID,
				Reason:    "two participants admitted",
			})
		}
		return events, newState, nil

	case CmdStart:
		if s.Player1ID == "" || s.Player2ID == "" {
			return nil, s, apperr.Wrap(apperr.KindStateConflict, ErrMissingPlayers, "cannot start game: player ids are missing")
		}
		newState.State = StateInProgress
		return []Event{{Type: EvtGameStarted, Player1ID: s.Player1ID, Player2ID: s.Player2ID}}, newState, nil

	case CmdEnd:
		newState.State = StateEnded
		return []Event{{Type: EvtGameEnded}}, newState, nil

	case CmdClose:
		clearSeats(&newState)
		newState.State = StateClosed
		return []Event{{Type: EvtEntryClosed, Reason: "closed by moderator"}}, newState, nil

	case CmdReset:
		clearSeats(&newState)
		newState.State = StateClosed
		return []Event{{Type: EvtSessionReset}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func rejectTransition(s Session, cmd Command) error {
	switch cmd.Type {
	case CmdOpen:
		return apperr.Wrap(apperr.KindStateConflict, ErrNeedsFreshSession, "cannot re-open session in state %s", s.State)
	case CmdAdmit:
		return apperr.Wrap(apperr.KindSessionClosed, ErrEntryClosed, "entry is not open (state %s)", s.State)
	case CmdStart:
		return apperr.Wrap(apperr.KindStateConflict, ErrNotReady, "cannot start game in state %s", s.State)
	case CmdEnd:
		return apperr.Wrap(apperr.KindStateConflict, ErrInvalidTransition, "cannot end game in state %s", s.State)
	default:
		return ErrUnsupportedCommand
	}
}

func clearSeats(s *Session) {
	s.Waiting = nil
	s.Player1ID = ""
	s.Player2ID = ""
}
