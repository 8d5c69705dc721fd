// ABOUTME: Keyword router that picks which agent answers a message.
// ABOUTME: Images always go to troubleshooting; otherwise keyword scores decide.

package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies one of the configured agents.
type Type string

const (
	Troubleshooting Type = "troubleshooting"
	Tenancy         Type = "tenancy"
	General         Type = "general"
)

// ErrUnknownType is returned by Parse for names that are not an agent.
var ErrUnknownType = errors.New("unknown agent type")

var (
	troubleshootingKeywords = []string{"repair", "broken", "leak", "damage", "mold", "issue", "problem", "fix", "maintenance"}
	tenancyKeywords         = []string{"lease", "rent", "tenant", "landlord", "agreement", "deposit", "eviction", "notice", "rights"}
)

// Types returns every agent type in display order.
func Types() []Type {
	return []Type{Troubleshooting, Tenancy, General}
}

// Valid reports whether t names a known agent.
func (t Type) Valid() bool {
	switch t {
	case Troubleshooting, Tenancy, General:
		return true
	}
	return false
}

// Parse converts a user-supplied name into a Type.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Scores holds the keyword hit counts for a message.
type Scores struct {
	Troubleshooting int
	Tenancy         int
}

// Score counts how many keywords of each set appear in text.
// A keyword counts once no matter how often it occurs.
func Score(text string) Scores {
	lower := strings.ToLower(text)
	var s Scores
	for _, kw := range troubleshootingKeywords {
		if strings.Contains(lower, kw) {
			s.Troubleshooting++
		}
	}
	for _, kw := range tenancyKeywords {
		if strings.Contains(lower, kw) {
			s.Tenancy++
		}
	}
	return s
}

// Route classifies a message. Equal non-zero scores resolve to
// troubleshooting; that asymmetry is intentional.
func Route(text string, hasImage bool) Type {
	if hasImage {
		return Troubleshooting
	}

	s := Score(text)
	switch {
	case s.Troubleshooting > s.Tenancy:
		return Troubleshooting
	case s.Tenancy > s.Troubleshooting:
		return Tenancy
	case s.Troubleshooting == 0:
		return General
	default:
		return Troubleshooting
	}
}

// Decide is the single authority for agent assignment.
// Precedence: an attached image, then an explicit selection, then Route.
// An empty or invalid explicit selection means "let the router decide".
func Decide(explicit Type, text string, hasImage bool) Type {
	if hasImage {
		return Troubleshooting
	}
	if explicit.Valid() {
		return explicit
	}
	return Route(text, false)
}
