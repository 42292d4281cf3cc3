// Package types holds the per-turn data model shared by every orchestration
// component: the AgentGraph, Blackboard, Artifacts, tool envelopes, canary
// state, critic assessments, the final TurnResult, and the §7 error
// taxonomy.
package types

import (
	"errors"
	"fmt"
)

// Kind is the closed error taxonomy from spec §7.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindTimeout     Kind = "timeout"
	KindPolicy      Kind = "policy"
	KindExecution   Kind = "execution"
	KindModel       Kind = "model"
	KindDependency  Kind = "dependency"
	KindGraph       Kind = "graph"
	KindHardGate    Kind = "hard_gate"
	KindPersistence Kind = "persistence"
)

// Error is the typed error every collaborator and component returns instead
// of raising exceptions, per Design Notes §9 ("exception-based control flow
// → result type {ok,value}|{err,kind,message}").
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs a taxonomy error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// AsTaxonomyError extracts a *Error from any error, if present.
func AsTaxonomyError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Canonical user-visible failure sentinels (spec §7).
const (
	SentinelTransport   = "I'm having trouble connecting right now. Please try again later."
	SentinelHardGate    = "I couldn't verify this with tools right now, so I won't provide an unverified answer. Please try again."
	SentinelFinalize    = "I could not finalize a plain-text answer after tool execution. Please try again."
	SentinelValidatorNG = "I couldn't safely validate this response against runtime checks, so I won't provide a potentially incorrect answer right now. Please try again."
)
