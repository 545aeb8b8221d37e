package domain

import "errors"

var (
	ErrJobNotFound            = errors.New("import job not found")
	ErrInvalidTransition      = errors.New("invalid stage transition")
	ErrTransitionInProgress   = errors.New("transition already in progress")
	ErrJobNotAwaitingApproval = errors.New("import job is not awaiting approval")
)
