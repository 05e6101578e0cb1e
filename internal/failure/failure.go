// Package failure defines the error taxonomy shared by every stage of the
// mail processing pipeline.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the part of the system that produced it.
type Kind string

const (
	KindNone          Kind = ""
	KindConnection    Kind = "connection"
	KindConfiguration Kind = "configuration"
	KindProviderQuery Kind = "provider-query"
	KindAttachment    Kind = "attachment"
	KindDelivery      Kind = "delivery"

	// KindMalformed is an inbound message that arrived but could not be
	// parsed as MIME.
	KindMalformed Kind = "malformed-message"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageParse     Stage = "parse"
	StageFilter    Stage = "filter"
	StageExtract   Stage = "extract"
	StageQuery     Stage = "query"
	StageCompose   Stage = "compose"
	StageSend      Stage = "send"
	StageMark      Stage = "mark"
	StageConfigure Stage = "configure"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind     Kind
	Stage    Stage
	Provider string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failure", e.Kind)
	if e.Stage != "" {
		msg += fmt.Sprintf(" during %s", e.Stage)
	}
	if e.Provider != "" {
		msg += fmt.Sprintf(" (%s)", e.Provider)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a failure with no underlying cause.
func New(kind Kind, stage Stage, reason string) *Error {
	return &Error{Kind: kind, Stage: stage, Reason: reason}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Connection wraps a network or login failure.
func Connection(stage Stage, err error) error {
	return Wrap(KindConnection, stage, err)
}

// Configuration reports an invalid or unusable configuration.
func Configuration(reason string) error {
	return New(KindConfiguration, StageConfigure, reason)
}

type kinded interface {
	Kind() Kind
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindNone.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindNone
}

// StageOf returns the stage recorded on err, or "" if none.
func StageOf(err error) Stage {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}

// Is reports whether err (or any error in its chain) has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
