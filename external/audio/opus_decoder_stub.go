//go:build !opus

package audio

import (
	"errors"

	"github.com/foxseedlab/kikitori/internal/audio"
)

// ErrOpusUnavailable is returned when the binary was built without the opus tag.
var ErrOpusUnavailable = errors.New("opus decoding unavailable: build with -tags opus")

func NewOpusDecoder() (audio.Decoder, error) {
	return nil, ErrOpusUnavailable
}
