package script

// These errors are user errors: something's wrong with a Def, not
// with this package.

import (
	"strings"
)

// BadKind occurs when a FeedbackDef names a feedback kind that
// doesn't exist.
type BadKind struct {
	Def *FeedbackDef
}

func (e *BadKind) Error() string {
	return `feedback kind "` + e.Def.Kind + `" isn't one of ` + strings.Join(Kinds, ", ")
}

// MissingSource occurs when a FeedbackDef lacks a source that its
// kind requires.
type MissingSource struct {
	Def  *FeedbackDef
	What string
}

func (e *MissingSource) Error() string {
	return `feedback kind "` + e.Def.Kind + `" requires a ` + e.What + ` source`
}

// StraySource occurs when a FeedbackDef has a source that its kind
// can't use.
type StraySource struct {
	Def  *FeedbackDef
	What string
}

func (e *StraySource) Error() string {
	return `feedback kind "` + e.Def.Kind + `" can't use a ` + e.What + ` source`
}
