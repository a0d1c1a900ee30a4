package game

import "errors"

var (
	ErrInvalidCard  = errors.New("invalid_card")
	ErrCellOccupied = errors.New("cell_occupied")
	ErrCellDetached = errors.New("cell_detached")
	ErrOutOfBounds  = errors.New("out_of_bounds")
	ErrDeckEmpty    = errors.New("deck_empty")
	ErrPileEmpty    = errors.New("pile_empty")
	ErrHandFull     = errors.New("hand_full")
)
