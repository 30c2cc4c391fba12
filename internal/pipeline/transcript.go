package pipeline

import "time"

type Transcript struct {
	Text     string
	Speaker  Speaker
	Identity string
	// Sequence is the speaker's window index, starting at 1.
	Sequence   int
	CapturedAt time.Time
	IsFinal    bool
}
