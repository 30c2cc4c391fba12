package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/discord"
	"github.com/foxseedlab/kikitori/internal/metrics"
	"github.com/foxseedlab/kikitori/internal/pipeline"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/foxseedlab/kikitori/internal/webhook"
)

const shutdownFinalizeTimeout = 30 * time.Second

type Manager struct {
	cfg          *config.Config
	repo         repository.Repository
	discord      discord.Client
	transcribers transcriber.Factory
	webhook      webhook.Sender
	metrics      *metrics.Metrics
	labels       speakerLabels

	// zero keeps the pipeline default
	pollInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*runningSession
	closing  bool
}

// runningSession is owned by the goroutine that started it; other callers
// only request a stop and wait on done.
type runningSession struct {
	guildID     string
	channelID   string
	requestedBy string

	ctx    context.Context
	cancel context.CancelFunc

	// guarded by Manager.mu
	repoSession    *repository.Session
	pipeline       *pipeline.Pipeline
	room           pipeline.Room
	participantIDs []string
	stopReason     string
	maxTimer       *time.Timer

	finalizeOnce sync.Once
	done         chan struct{}
}

func NewManager(cfg *config.Config, repo repository.Repository, dc discord.Client, transcribers transcriber.Factory, wh webhook.Sender, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:          cfg,
		repo:         repo,
		discord:      dc,
		transcribers: transcribers,
		webhook:      wh,
		metrics:      m,
		labels: speakerLabels{
			pipeline.SpeakerA.String(): cfg.SpeakerAMarker,
			pipeline.SpeakerB.String(): cfg.SpeakerBMarker,
		},
		sessions: make(map[string]*runningSession),
	}
}

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{Name: commandKikitori, Description: slashCommandStartDescription},
		{Name: commandKikitoriStop, Description: slashCommandStopDescription},
	}
}

func (m *Manager) HandleSlashCommand(event discord.SlashCommandEvent) {
	slog.Info("slash command received", "guild_id", event.GuildID, "command", event.CommandName, "user_id", event.UserID)
	if event.GuildID != m.cfg.DiscordGuildID {
		m.respond(event, messageEphemeralWrongGuild)
		return
	}
	switch event.CommandName {
	case commandKikitori:
		m.handleStartCommand(event)
	case commandKikitoriStop:
		m.handleStopCommand(event)
	default:
		m.respond(event, messageEphemeralUnknownCommand)
	}
}

func (m *Manager) respond(event discord.SlashCommandEvent, content string) {
	if event.RespondEphemeral == nil {
		return
	}
	if err := event.RespondEphemeral(content); err != nil {
		slog.Error("failed to respond to slash command", "error", err, "command", event.CommandName, "user_id", event.UserID)
	}
}

func (m *Manager) userChannel(event discord.SlashCommandEvent) (string, bool) {
	channelID, err := m.discord.GetUserVoiceChannelID(event.GuildID, event.UserID)
	if err != nil {
		slog.Error("failed to resolve user voice channel", "error", err, "guild_id", event.GuildID, "user_id", event.UserID)
		m.respond(event, messageEphemeralVoiceLookupFailed)
		return "", false
	}
	if channelID == "" {
		m.respond(event, messageEphemeralJoinVCFirst)
		return "", false
	}
	return channelID, true
}

func (m *Manager) handleStartCommand(event discord.SlashCommandEvent) {
	channelID, ok := m.userChannel(event)
	if !ok {
		return
	}
	rs, msg := m.reserveSession(event.GuildID, channelID, event.UserID)
	if rs == nil {
		m.respond(event, msg)
		return
	}
	m.respond(event, startEphemeralMessage(channelID))
	go m.runSessionWorker(rs, "session_owner", func() { m.runSession(rs) })
}

func (m *Manager) handleStopCommand(event discord.SlashCommandEvent) {
	channelID, ok := m.userChannel(event)
	if !ok {
		return
	}
	if !m.stopSession(event.GuildID, channelID, stopReasonManualSlash) {
		m.respond(event, messageEphemeralNotRunning)
		return
	}
	m.respond(event, stopEphemeralMessage(channelID))
}

func (m *Manager) sessionKey(guildID, channelID string) string {
	return guildID + ":" + channelID
}

func (m *Manager) isSessionRunning(guildID, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[m.sessionKey(guildID, channelID)]
	return ok
}

// reserveSession registers a session for the channel. The bot holds one
// voice connection per guild, so a second channel in the same guild is
// rejected.
func (m *Manager) reserveSession(guildID, channelID, userID string) (*runningSession, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return nil, messageEphemeralStartFailed
	}
	if _, ok := m.sessions[m.sessionKey(guildID, channelID)]; ok {
		return nil, messageEphemeralAlreadyRunning
	}
	for _, rs := range m.sessions {
		if rs.guildID == guildID {
			return nil, messageEphemeralBusyInGuild
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{
		guildID:     guildID,
		channelID:   channelID,
		requestedBy: userID,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.sessions[m.sessionKey(guildID, channelID)] = rs
	slog.Info("session reserved", "guild_id", guildID, "channel_id", channelID, "user_id", userID)
	return rs, ""
}

func (m *Manager) runSession(rs *runningSession) {
	ctx := context.Background()
	if err := m.closeOrphanSession(ctx, rs.guildID, rs.channelID); err != nil {
		m.failStart(rs, stopReasonUnknownError, err)
		return
	}
	created, err := m.repo.CreateSession(ctx, repository.CreateSessionInput{
		GuildID:   rs.guildID,
		ChannelID: rs.channelID,
		StartedAt: time.Now(),
	})
	if err != nil {
		m.failStart(rs, stopReasonUnknownError, fmt.Errorf("create session: %w", err))
		return
	}
	m.mu.Lock()
	rs.repoSession = created
	m.mu.Unlock()
	log := slog.With("session_id", created.ID, "guild_id", rs.guildID, "channel_id", rs.channelID)
	log.Info("created session; waiting for participants")

	p := pipeline.NewPipeline(m.pipelineOptions(rs))
	stream, err := p.Start(rs.ctx)
	if err != nil {
		m.failStart(rs, startFailureReason(err), err)
		return
	}
	if !m.markStarted(rs, p, m.roomParticipantIDs(rs)) {
		p.Stop()
	}
	log.Info("session activated", "run_id", p.RunID())

	if err := m.discord.SendChannelMessage(rs.channelID, startChannelMessage()); err != nil {
		log.Error("failed to post start message", "error", err)
	}

	index := 0
	for t := range stream {
		if !t.IsFinal || strings.TrimSpace(t.Text) == "" {
			continue
		}
		m.handleTranscript(rs, created.ID, index, t)
		index++
	}

	// The stream only closes on its own once every tracked speaker has left.
	m.detach(rs, stopReasonParticipantsLeft)
	<-p.Done()
	m.finalizeSession(rs)
}

func (m *Manager) pipelineOptions(rs *runningSession) pipeline.Options {
	return pipeline.Options{
		Connector: pipeline.ConnectorFunc(func(ctx context.Context) (pipeline.Room, error) {
			room, err := m.discord.OpenRoom(ctx, rs.guildID, rs.channelID)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			rs.room = room
			m.mu.Unlock()
			return room, nil
		}),
		Transcribers: m.transcribers,
		Markers: pipeline.RoleMarkers{
			A: m.cfg.SpeakerAMarker,
			B: m.cfg.SpeakerBMarker,
		},
		SampleRate:       m.cfg.TargetSampleRate,
		WindowBytes:      audio.PCMBytes(m.cfg.WindowDuration, m.cfg.TargetSampleRate),
		MinFlushBytes:    audio.PCMBytes(m.cfg.MinFlushDuration, m.cfg.TargetSampleRate),
		DiscoveryTimeout: m.cfg.ParticipantDiscoveryTimeout,
		PollInterval:     m.pollInterval,
		QueueCapacity:    m.cfg.TranscriptQueueCapacity,
		Metrics:          m.metrics,
	}
}

// markStarted attaches the running pipeline and arms the max duration
// timer. It reports false when a stop was requested while starting.
func (m *Manager) markStarted(rs *runningSession, p *pipeline.Pipeline, participantIDs []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs.pipeline = p
	rs.participantIDs = participantIDs
	if rs.stopReason != "" {
		return false
	}
	if limit := time.Duration(m.cfg.MaxTranscribeDurationMin) * time.Minute; limit > 0 {
		rs.maxTimer = time.AfterFunc(limit, func() {
			slog.Info("max transcribe duration reached", "guild_id", rs.guildID, "channel_id", rs.channelID, "limit", limit)
			m.stopSession(rs.guildID, rs.channelID, stopReasonMaxDuration)
		})
	}
	return true
}

func (m *Manager) roomParticipantIDs(rs *runningSession) []string {
	m.mu.Lock()
	room := rs.room
	m.mu.Unlock()
	if room == nil {
		return nil
	}
	var ids []string
	for _, participant := range room.Participants() {
		ids = append(ids, participant.ID)
	}
	return ids
}

func startFailureReason(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrDiscoveryTimeout):
		return stopReasonDiscoveryTimeout
	case errors.Is(err, pipeline.ErrNoTrackedSpeakers):
		return stopReasonNoSpeakers
	default:
		return stopReasonUnknownError
	}
}

func (m *Manager) failStart(rs *runningSession, reason string, err error) {
	requested := !m.detach(rs, reason)
	m.mu.Lock()
	reason = rs.stopReason
	created := rs.repoSession
	m.mu.Unlock()

	if requested {
		slog.Info("session stopped before it became active", "guild_id", rs.guildID, "channel_id", rs.channelID, "reason", reason, "error", err)
		if sendErr := m.discord.SendChannelMessage(rs.channelID, stopChannelMessage(reason)); sendErr != nil {
			slog.Error("failed to post stop message", "error", sendErr, "channel_id", rs.channelID)
		}
	} else {
		slog.Error("failed to start session", "guild_id", rs.guildID, "channel_id", rs.channelID, "reason", reason, "error", err)
		if sendErr := m.discord.SendChannelMessage(rs.channelID, startFailedMessage(rs.requestedBy, reason)); sendErr != nil {
			slog.Error("failed to post start failure message", "error", sendErr, "channel_id", rs.channelID)
		}
	}
	if created != nil {
		if updateErr := m.repo.UpdateSessionCompleted(context.Background(), repository.CompleteSessionInput{
			SessionID:  created.ID,
			EndedAt:    time.Now(),
			StopReason: reason,
		}); updateErr != nil {
			slog.Error("failed to complete session", "error", updateErr, "session_id", created.ID)
		}
	}
	rs.finalizeOnce.Do(func() {
		rs.cancel()
		close(rs.done)
	})
}

func (m *Manager) closeOrphanSession(ctx context.Context, guildID, channelID string) error {
	sess, err := m.repo.GetRunningSessionByChannel(ctx, guildID, channelID)
	if err != nil {
		return fmt.Errorf("query running session: %w", err)
	}
	if sess == nil {
		return nil
	}
	slog.Warn("found orphan running session in repository; closing and continuing", "session_id", sess.ID, "guild_id", guildID, "channel_id", channelID)
	if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
		SessionID:  sess.ID,
		EndedAt:    time.Now(),
		StopReason: stopReasonUnknownError,
	}); err != nil {
		return fmt.Errorf("complete orphan session %s: %w", sess.ID, err)
	}
	return nil
}

func (m *Manager) handleTranscript(rs *runningSession, sessionID string, segmentIndex int, t pipeline.Transcript) {
	spokenAt := t.CapturedAt
	if spokenAt.IsZero() {
		spokenAt = time.Now()
	}
	if err := m.repo.InsertSegment(context.Background(), repository.InsertSegmentInput{
		SessionID:      sessionID,
		Content:        t.Text,
		SegmentIndex:   segmentIndex,
		Speaker:        t.Speaker.String(),
		Identity:       t.Identity,
		WindowSequence: t.Sequence,
		SpokenAt:       spokenAt,
	}); err != nil {
		slog.Error("failed to insert segment", "error", err, "session_id", sessionID, "speaker", t.Speaker.String())
		return
	}
	if err := m.discord.SendChannelMessage(rs.channelID, m.labels.line(t.Speaker.String(), t.Text)); err != nil {
		slog.Error("failed to post transcript message", "error", err, "session_id", sessionID)
	}
}

// detach removes rs from the registry and records reason unless a stop
// reason is already set. It reports whether this call removed it.
func (m *Manager) detach(rs *runningSession, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rs.stopReason == "" {
		rs.stopReason = reason
	}
	key := m.sessionKey(rs.guildID, rs.channelID)
	if cur, ok := m.sessions[key]; ok && cur == rs {
		delete(m.sessions, key)
		return true
	}
	return false
}

// halt stops a started pipeline so tails are flushed, or cancels a start
// that is still discovering participants.
func (m *Manager) halt(rs *runningSession) {
	m.mu.Lock()
	p := rs.pipeline
	if rs.maxTimer != nil {
		rs.maxTimer.Stop()
	}
	m.mu.Unlock()
	if p != nil {
		p.Stop()
		return
	}
	rs.cancel()
}

func (m *Manager) stopSession(guildID, channelID, reason string) bool {
	m.mu.Lock()
	rs, ok := m.sessions[m.sessionKey(guildID, channelID)]
	m.mu.Unlock()
	if !ok || !m.detach(rs, reason) {
		return false
	}
	slog.Info("stopping session", "guild_id", guildID, "channel_id", channelID, "reason", reason)
	m.halt(rs)
	return true
}

// StopAllSessions stops every session and waits for each to be finalized.
// Sessions started afterwards are rejected.
func (m *Manager) StopAllSessions(reason string) int {
	m.mu.Lock()
	m.closing = true
	running := make([]*runningSession, 0, len(m.sessions))
	for _, rs := range m.sessions {
		running = append(running, rs)
	}
	m.mu.Unlock()

	stopped := make([]*runningSession, 0, len(running))
	for _, rs := range running {
		if m.detach(rs, reason) {
			m.halt(rs)
			stopped = append(stopped, rs)
		}
	}
	deadline := time.After(shutdownFinalizeTimeout)
	for _, rs := range stopped {
		select {
		case <-rs.done:
		case <-deadline:
			slog.Warn("timed out waiting for sessions to finalize", "stopped", len(stopped))
			return len(stopped)
		}
	}
	return len(stopped)
}

// runSessionWorker runs fn and turns a panic into an unknown_error stop
// so the session is still finalized.
func (m *Manager) runSessionWorker(rs *runningSession, worker string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session worker panicked", "worker", worker, "guild_id", rs.guildID, "channel_id", rs.channelID, "panic", r)
			m.detach(rs, stopReasonUnknownError)
			m.halt(rs)
			m.finalizeSession(rs)
		}
	}()
	fn()
}

func (m *Manager) finalizeSession(rs *runningSession) {
	rs.finalizeOnce.Do(func() {
		defer close(rs.done)
		defer rs.cancel()

		m.mu.Lock()
		s := rs.repoSession
		reason := rs.stopReason
		participantIDs := append([]string(nil), rs.participantIDs...)
		if rs.maxTimer != nil {
			rs.maxTimer.Stop()
		}
		m.mu.Unlock()
		if reason == "" {
			reason = stopReasonUnknownError
		}

		if err := m.discord.SendChannelMessage(rs.channelID, stopChannelMessage(reason)); err != nil {
			slog.Error("failed to post stop message", "error", err, "channel_id", rs.channelID)
		}
		if s == nil {
			return
		}
		m.publishTranscript(s, rs, reason, participantIDs)
	})
}

func (m *Manager) publishTranscript(s *repository.Session, rs *runningSession, reason string, participantIDs []string) {
	ctx := context.Background()
	endedAt := time.Now()
	log := slog.With("session_id", s.ID, "channel_id", rs.channelID, "reason", reason)

	segments, err := m.repo.ListSegmentsBySessionID(ctx, s.ID)
	if err != nil {
		log.Error("failed to list transcript segments; attaching header only", "error", err)
		segments = nil
	}
	meta, err := m.discord.ResolveTranscriptMetadata(ctx, rs.guildID, rs.channelID, participantIDs)
	if err != nil {
		log.Warn("failed to resolve transcript metadata", "error", err)
		meta = fallbackMetadata(rs.guildID, rs.channelID, participantIDs)
	}
	loc, err := time.LoadLocation(m.cfg.TranscriptTimezone)
	if err != nil {
		loc = time.UTC
	}

	body := buildTranscriptText(meta, s.StartedAt, endedAt, m.cfg.TranscriptTimezone, loc, m.labels, segments)
	filename := fmt.Sprintf("transcript-%s.txt", s.ID)
	if err := m.discord.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID: rs.channelID,
		Content:   transcriptAttachmentMessage(),
		Filename:  filename,
		FileBody:  body,
	}); err != nil {
		log.Error("failed to post transcript attachment", "error", err)
	}
	if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
		SessionID:  s.ID,
		EndedAt:    endedAt,
		StopReason: reason,
	}); err != nil {
		log.Error("failed to complete session", "error", err)
	}
	if m.webhook == nil {
		return
	}
	payload := buildTranscriptWebhookPayload(s.ID, reason, meta, s.StartedAt, endedAt, m.cfg.TranscriptTimezone, loc, m.labels, segments)
	if err := m.webhook.SendTranscript(ctx, payload); err != nil {
		log.Error("failed to send webhook transcript", "error", err)
	}
	log.Info("session finalized", "segments", len(segments))
}

func fallbackMetadata(guildID, channelID string, participantIDs []string) discord.TranscriptMetadata {
	participants := make([]discord.TranscriptParticipant, 0, len(participantIDs))
	for _, id := range participantIDs {
		participants = append(participants, discord.TranscriptParticipant{UserID: id, DisplayName: id})
	}
	return discord.TranscriptMetadata{
		DiscordServerID:         guildID,
		DiscordServerName:       guildID,
		DiscordVoiceChannelID:   channelID,
		DiscordVoiceChannelName: channelID,
		Participants:            participants,
	}
}

// Shutdown stops every session as server_closed.
func (m *Manager) Shutdown() int {
	return m.StopAllSessions(stopReasonServerClosed)
}
