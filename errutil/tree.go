package errutil

import (
	"fmt"

	"github.com/xeptore/flaw/v8"
)

type ErrInfo struct {
	Message  string
	TypeName string
	Children []ErrInfo
}

func (e ErrInfo) FlawP() flaw.P {
	var ch []flaw.P
	if len(e.Children) > 0 {
		ch = make([]flaw.P, len(e.Children))
		for i, child := range e.Children {
			ch[i] = child.FlawP()
		}
	}

	return flaw.P{
		"message":   e.Message,
		"type_name": e.TypeName,
		"children":  ch,
	}
}

// Tree expands an error into its wrap/join structure for attachment to
// flaw payloads.
func Tree(err error) ErrInfo {
	if err == nil {
		panic("nil error")
	}

	//nolint:errorlint
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		var children []ErrInfo
		if inner := x.Unwrap(); nil != inner {
			children = []ErrInfo{Tree(inner)}
		}
		return ErrInfo{
			Message:  err.Error(),
			TypeName: fmt.Sprintf("%T", err),
			Children: children,
		}
	case interface{ Unwrap() []error }:
		inners := x.Unwrap()
		children := make([]ErrInfo, 0, len(inners))
		for _, inner := range inners {
			children = append(children, Tree(inner))
		}
		return ErrInfo{
			Message:  err.Error(),
			TypeName: fmt.Sprintf("%T", err),
			Children: children,
		}
	default:
		return ErrInfo{
			Message:  err.Error(),
			TypeName: fmt.Sprintf("%T", err),
			Children: nil,
		}
	}
}
