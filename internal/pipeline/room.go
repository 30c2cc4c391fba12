package pipeline

import (
	"context"

	"github.com/foxseedlab/kikitori/internal/audio"
)

type Participant struct {
	ID       string
	Identity string
}

// Room is a connected real-time session. AudioFrames returns a push stream
// for one participant that the room closes when the participant leaves or
// the room is closed.
type Room interface {
	Participants() []Participant
	AudioFrames(identity string) (<-chan audio.Frame, error)
	Close() error
}

type Connector interface {
	Connect(ctx context.Context) (Room, error)
}

type ConnectorFunc func(ctx context.Context) (Room, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Room, error) {
	return f(ctx)
}
