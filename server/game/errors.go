package game

import "errors"

var ErrNotFound = errors.New("game not found")
var ErrWrongTurn = errors.New("not this player's turn")
var ErrInvalidState = errors.New("game is not in progress")
var ErrGameOver = errors.New("game already finished")
