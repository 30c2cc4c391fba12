// Package pipeline turns per-participant audio frames into a single stream
// of speaker-tagged transcripts.
package pipeline

import "strings"

type Speaker int

const (
	SpeakerA Speaker = iota
	SpeakerB
)

func (s Speaker) String() string {
	switch s {
	case SpeakerA:
		return "speaker_a"
	case SpeakerB:
		return "speaker_b"
	default:
		return "unknown"
	}
}

// RoleMarkers are the identity substrings that select each role.
type RoleMarkers struct {
	A string
	B string
}

func DefaultRoleMarkers() RoleMarkers {
	return RoleMarkers{A: "interviewer", B: "candidate"}
}

// ResolveSpeaker matches identity against the markers case-insensitively.
// A is checked before B, and an empty marker never matches.
func ResolveSpeaker(identity string, markers RoleMarkers) (Speaker, bool) {
	id := strings.ToLower(identity)
	if matchesMarker(id, markers.A) {
		return SpeakerA, true
	}
	if matchesMarker(id, markers.B) {
		return SpeakerB, true
	}
	return 0, false
}

func matchesMarker(identity, marker string) bool {
	marker = strings.ToLower(strings.TrimSpace(marker))
	if marker == "" {
		return false
	}
	return strings.Contains(identity, marker)
}
