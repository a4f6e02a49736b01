// Package admission implements the client-side outbound-message filter.
//
// The filter is a UX guard, not a security boundary: it exists to avoid a
// wasted round trip for questions the backend would refuse anyway. The
// backend keeps its own authoritative copy of the check.
package admission

import (
	"errors"
	"strings"
)

// RefusalMessage is shown to the user when a message is blocked.
const RefusalMessage = "I can only answer questions related to company data and procedures. Please ask about topics relevant to your department."

// ErrBlocked is returned by the chat client when admission control rejects
// a message before any network call. Its text is user-displayable.
var ErrBlocked = errors.New(RefusalMessage)

// Blocked reports whether message contains any of the configured keywords.
// Matching is a case-insensitive substring check with no word-boundary
// awareness, so the keyword "game" also blocks "games" and "endgame".
// An empty keyword list never blocks.
func Blocked(message string, keywords []string) bool {
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
