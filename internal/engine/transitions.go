package engine

// Which states each command may be applied from. Open is special: from any
// state outside this list the caller must mint a fresh session instead.
var allowedFrom = map[CommandType][]State{
	CmdOpen:  {StateOpen, StateReady},
	CmdClose: {StateClosed, StateOpen, StateReady, StateInProgress, StateEnded},
	CmdAdmit: {StateOpen},
	CmdStart: {StateReady},
	CmdEnd:   {StateOpen, StateReady, StateInProgress, StateEnded},
	CmdReset: {StateClosed, StateOpen, StateReady, StateInProgress, StateEnded},
}

// States in which player1/player2 ids are assigned.
var seatedStates = map[State]bool{
	StateReady:      true,
	StateInProgress: true,
	StateEnded:      true,
}
