package pipeline

import "github.com/rotisserie/eris"

// Errors returned synchronously by Intake and Tracker. None of them leave a
// state change behind.
var (
	ErrInvalidInput     = eris.New("pipeline: invalid input")
	ErrForbidden        = eris.New("pipeline: forbidden")
	ErrNotFound         = eris.New("pipeline: assessment not found")
	ErrAlreadyCompleted = eris.New("pipeline: assessment already completed")
	ErrTerminal         = eris.New("pipeline: assessment analysis failed and is closed")
	ErrConflict         = eris.New("pipeline: assessment changed concurrently or is in flight")
)
