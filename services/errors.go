package services

import "errors"

// Error taxonomy shared by all services. Handlers map these onto HTTP codes;
// none of them should tear down a live subscription.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrAlreadySubmitted   = errors.New("response already submitted")
	ErrConflict           = errors.New("lost a concurrent update race")
	ErrValidation         = errors.New("invalid value")
	ErrStaleQuestion      = errors.New("question is no longer active")
	ErrNoPendingQuestions = errors.New("no pending questions")
)
