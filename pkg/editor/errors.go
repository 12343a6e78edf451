package editor

import (
	"errors"
	"fmt"

	"github.com/menta2k/zone-annotator/pkg/types"
)

// ErrSessionClosed is returned by any call after save or cancel.
var ErrSessionClosed = errors.New("editor session is closed")

// Rule names a save validation rule.
type Rule string

const (
	RulePolygonMinPoints Rule = "polygon_min_points"
	RuleLineExactPoints  Rule = "line_exact_points"
	RuleUnknownMode      Rule = "unknown_mode"
)

// ValidationError reports which save rule a session failed.
type ValidationError struct {
	Mode   types.Mode
	Rule   Rule
	Points int
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case RulePolygonMinPoints:
		return fmt.Sprintf("polygon needs at least 3 points, have %d", e.Points)
	case RuleLineExactPoints:
		return fmt.Sprintf("line needs exactly 2 points, have %d", e.Points)
	default:
		return fmt.Sprintf("unknown zone mode %q", e.Mode)
	}
}
