package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/pipeline"
)

// One second of 20ms opus frames.
const defaultFrameQueue = 50

// voiceRoom demultiplexes the voice connection's opus stream by SSRC into
// one decoded frame stream per participant.
type voiceRoom struct {
	client    *Client
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
	decoders  audio.DecoderFactory
	queueSize int

	closed        chan struct{}
	closeOnce     sync.Once
	removeHandler func()

	mu          sync.Mutex
	names       map[string]string // user ID -> display name
	identities  map[string]string // display name -> user ID
	ssrcUsers   map[uint32]string
	ssrcDecoder map[uint32]audio.Decoder
	streams     map[string]*participantStream // by user ID
}

type participantStream struct {
	in   chan audio.Frame
	out  chan audio.Frame
	left chan struct{}
	once sync.Once
}

func newVoiceRoom(client *Client, guildID, channelID string) *voiceRoom {
	queue := client.frameQueue
	if queue <= 0 {
		queue = defaultFrameQueue
	}
	return &voiceRoom{
		client:      client,
		guildID:     guildID,
		channelID:   channelID,
		decoders:    client.decoders,
		queueSize:   queue,
		closed:      make(chan struct{}),
		names:       make(map[string]string),
		identities:  make(map[string]string),
		ssrcUsers:   make(map[uint32]string),
		ssrcDecoder: make(map[uint32]audio.Decoder),
		streams:     make(map[string]*participantStream),
	}
}

func openVoiceRoom(client *Client, vc *discordgo.VoiceConnection, guildID, channelID string) *voiceRoom {
	r := newVoiceRoom(client, guildID, channelID)
	r.vc = vc
	vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		if vs == nil || vs.UserID == "" {
			return
		}
		r.trackSSRC(uint32(vs.SSRC), vs.UserID)
	})
	r.removeHandler = client.session.AddHandler(func(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if vs == nil || vs.GuildID != r.guildID || vs.ChannelID == r.channelID {
			return
		}
		r.participantLeft(vs.UserID)
	})
	go r.receive()
	return r
}

func (r *voiceRoom) Participants() []pipeline.Participant {
	userIDs := r.client.voiceChannelUsers(r.guildID, r.channelID)
	participants := make([]pipeline.Participant, 0, len(userIDs))
	for _, userID := range userIDs {
		participants = append(participants, pipeline.Participant{
			ID:       userID,
			Identity: r.identity(userID),
		})
	}
	return participants
}

func (r *voiceRoom) identity(userID string) string {
	r.mu.Lock()
	name, ok := r.names[userID]
	r.mu.Unlock()
	if ok {
		return name
	}
	name = r.client.lookupParticipant(r.guildID, userID).DisplayName
	r.rememberName(userID, name)
	return name
}

func (r *voiceRoom) rememberName(userID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[userID] = name
	if _, taken := r.identities[name]; !taken {
		r.identities[name] = userID
	}
}

func (r *voiceRoom) AudioFrames(identity string) (<-chan audio.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.closed:
		return nil, fmt.Errorf("room is closed")
	default:
	}
	userID, ok := r.identities[identity]
	if !ok {
		return nil, fmt.Errorf("no participant with identity %q", identity)
	}
	if st, ok := r.streams[userID]; ok {
		return st.out, nil
	}
	st := &participantStream{
		in:   make(chan audio.Frame, r.queueSize),
		out:  make(chan audio.Frame),
		left: make(chan struct{}),
	}
	r.streams[userID] = st
	go st.forward(r.closed)
	return st.out, nil
}

// forward is the only sender on out and closes it when the participant
// leaves or the room closes.
func (st *participantStream) forward(closed <-chan struct{}) {
	defer close(st.out)
	for {
		select {
		case frame := <-st.in:
			select {
			case st.out <- frame:
			case <-st.left:
				return
			case <-closed:
				return
			}
		case <-st.left:
			return
		case <-closed:
			return
		}
	}
}

func (r *voiceRoom) trackSSRC(ssrc uint32, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.ssrcUsers[ssrc]; ok && prev != userID {
		// Reassigned SSRC; the next packet starts a fresh decoder.
		delete(r.ssrcDecoder, ssrc)
	}
	r.ssrcUsers[ssrc] = userID
}

func (r *voiceRoom) participantLeft(userID string) {
	r.mu.Lock()
	st, ok := r.streams[userID]
	if ok {
		delete(r.streams, userID)
	}
	r.mu.Unlock()
	if ok {
		slog.Info("participant left voice channel", "guild_id", r.guildID, "channel_id", r.channelID, "user_id", userID)
		st.once.Do(func() { close(st.left) })
	}
}

func (r *voiceRoom) receive() {
	defer r.closeDecoders()
	if r.vc == nil || r.vc.OpusRecv == nil {
		return
	}
	for {
		select {
		case <-r.closed:
			return
		case p, ok := <-r.vc.OpusRecv:
			if !ok {
				return
			}
			if p == nil || len(p.Opus) == 0 {
				continue
			}
			r.dispatch(p.SSRC, p.Opus)
		}
	}
}

// dispatch decodes one packet for a tracked participant. Packets from
// untracked or not yet identified SSRCs are dropped.
func (r *voiceRoom) dispatch(ssrc uint32, packet []byte) {
	r.mu.Lock()
	userID := r.ssrcUsers[ssrc]
	st, tracked := r.streams[userID]
	if userID == "" || !tracked {
		r.mu.Unlock()
		return
	}
	dec, ok := r.ssrcDecoder[ssrc]
	if !ok {
		var err error
		dec, err = r.decoders()
		if err != nil {
			r.mu.Unlock()
			slog.Error("failed to create audio decoder", "ssrc", ssrc, "user_id", userID, "error", err)
			return
		}
		r.ssrcDecoder[ssrc] = dec
	}
	r.mu.Unlock()

	frame, err := dec.Decode(packet)
	if err != nil {
		slog.Debug("dropping undecodable packet", "ssrc", ssrc, "user_id", userID, "error", err)
		return
	}
	select {
	case st.in <- frame:
	case <-st.left:
	case <-r.closed:
	}
}

func (r *voiceRoom) closeDecoders() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ssrc, dec := range r.ssrcDecoder {
		dec.Close()
		delete(r.ssrcDecoder, ssrc)
	}
}

func (r *voiceRoom) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		if r.removeHandler != nil {
			r.removeHandler()
		}
		if r.vc != nil {
			err = r.vc.Disconnect()
		}
		slog.Info("left voice channel", "guild_id", r.guildID, "channel_id", r.channelID)
	})
	return err
}
