package errors

import "errors"

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrDuplicateTask     = errors.New("an install for this game is already active")
	ErrTaskTerminal      = errors.New("task already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrManagerClosed     = errors.New("manager is shutting down")
	ErrInvalidRequest    = errors.New("invalid request")

	ErrConsoleNotFound  = errors.New("console not found")
	ErrSourceNotFound   = errors.New("source not found")
	ErrInvalidSource    = errors.New("invalid source descriptor")
	ErrDownloadFailed   = errors.New("download failed")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrNoMatchingEntry  = errors.New("no matching archive entry")
	ErrGameDirBusy      = errors.New("game directory is busy")
	ErrCancelled        = errors.New("cancelled by user")
)
