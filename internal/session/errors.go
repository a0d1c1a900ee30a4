package session

import "errors"

var (
	ErrSessionFull      = errors.New("session_full")
	ErrNicknameTaken    = errors.New("nickname_taken")
	ErrAlreadyConnected = errors.New("already_connected")
	ErrUnknownPlayer    = errors.New("unknown_player")
	ErrNotYourTurn      = errors.New("not_your_turn")
	ErrWrongPhase       = errors.New("wrong_phase")
	ErrSessionEnded     = errors.New("session_ended")
	ErrSessionNotFound  = errors.New("session_not_found")
)
