package session

import (
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/kikitori/internal/discord"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/webhook"
)

var testLabels = speakerLabels{"speaker_a": "interviewer", "speaker_b": "candidate"}

func TestBuildTranscriptText(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	startedAt := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	endedAt := startedAt.Add(2 * time.Minute)
	segments := []repository.TranscriptSegment{
		{SegmentIndex: 0, Speaker: "speaker_a", SpokenAt: startedAt.Add(15 * time.Second), Content: "こんにちは"},
		{SegmentIndex: 1, Speaker: "speaker_b", SpokenAt: startedAt.Add(75 * time.Second), Content: "よろしくお願いします"},
	}

	body := string(buildTranscriptText(discord.TranscriptMetadata{
		DiscordServerName:       "Kemo Server",
		DiscordVoiceChannelName: "General VC",
		Participants: []discord.TranscriptParticipant{
			{UserID: "u2", DisplayName: "Bob"},
			{UserID: "u1", DisplayName: "Alice"},
		},
	}, startedAt, endedAt, "Asia/Tokyo", loc, testLabels, segments))

	if !strings.Contains(body, "サーバー名：Kemo Server") {
		t.Fatalf("server name not found in body: %s", body)
	}
	if !strings.Contains(body, "ボイスチャンネル名：General VC") {
		t.Fatalf("channel name not found in body: %s", body)
	}
	if !strings.Contains(body, "参加者：Alice、Bob") {
		t.Fatalf("participants line not found in body: %s", body)
	}
	if !strings.Contains(body, "00:00:15 [interviewer] こんにちは") {
		t.Fatalf("first segment line not found in body: %s", body)
	}
	if !strings.Contains(body, "00:01:15 [candidate] よろしくお願いします") {
		t.Fatalf("second segment line not found in body: %s", body)
	}
}

func TestBuildTranscriptWebhookPayload_SegmentEndAtRules(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	startedAt := time.Date(2026, 2, 28, 19, 0, 0, 0, loc)
	segments := []repository.TranscriptSegment{
		{SegmentIndex: 0, Speaker: "speaker_a", Identity: "alice", WindowSequence: 1, SpokenAt: startedAt.Add(10 * time.Second), Content: "first"},
		{SegmentIndex: 1, Speaker: "speaker_b", Identity: "bob", WindowSequence: 1, SpokenAt: startedAt.Add(30 * time.Second), Content: "second"},
	}
	endedAt := startedAt.Add(45 * time.Second)

	payload := buildTranscriptWebhookPayload("session-1", stopReasonManualSlash, discord.TranscriptMetadata{
		DiscordServerID:         "guild-1",
		DiscordServerName:       "guild",
		DiscordVoiceChannelID:   "vc-1",
		DiscordVoiceChannelName: "vc",
		Participants: []discord.TranscriptParticipant{
			{UserID: "u2", DisplayName: "bob"},
			{UserID: "u1", DisplayName: "alice"},
		},
	}, startedAt, endedAt, "Asia/Tokyo", loc, testLabels, segments)

	assertTranscriptPayloadCore(t, payload, segments, endedAt)
	assertTranscriptPayloadMetadata(t, payload)
}

func assertTranscriptPayloadCore(t *testing.T, payload webhook.TranscriptWebhookPayload, segments []repository.TranscriptSegment, endedAt time.Time) {
	if payload.SchemaVersion != webhook.TranscriptWebhookSchemaVersion {
		t.Fatalf("unexpected schema_version: %s", payload.SchemaVersion)
	}
	if len(payload.TranscriptSegments) != 2 {
		t.Fatalf("unexpected transcript segment count: %d", len(payload.TranscriptSegments))
	}
	if payload.TranscriptSegments[0].EndAt != segments[1].SpokenAt.Format(time.RFC3339) {
		t.Fatalf("unexpected first segment end_at: %s", payload.TranscriptSegments[0].EndAt)
	}
	if payload.TranscriptSegments[1].EndAt != endedAt.Format(time.RFC3339) {
		t.Fatalf("unexpected second segment end_at: %s", payload.TranscriptSegments[1].EndAt)
	}
	if payload.Participants[0] != "alice" || payload.Participants[1] != "bob" {
		t.Fatalf("participants are not sorted: %+v", payload.Participants)
	}
	if payload.TranscriptSegments[0].Speaker != "interviewer" || payload.TranscriptSegments[1].Speaker != "candidate" {
		t.Fatalf("unexpected segment speakers: %+v", payload.TranscriptSegments)
	}
	if payload.TranscriptSegments[1].Identity != "bob" || payload.TranscriptSegments[1].WindowSequence != 1 {
		t.Fatalf("unexpected segment identity fields: %+v", payload.TranscriptSegments[1])
	}
	if payload.Transcript != "[interviewer] first\n[candidate] second" {
		t.Fatalf("unexpected joined transcript: %q", payload.Transcript)
	}
}

func assertTranscriptPayloadMetadata(t *testing.T, payload webhook.TranscriptWebhookPayload) {
	if payload.DiscordServerID != "guild-1" || payload.DiscordServerName != "guild" {
		t.Fatalf("unexpected discord server fields: id=%s name=%s", payload.DiscordServerID, payload.DiscordServerName)
	}
	if payload.DiscordVoiceChannelID != "vc-1" || payload.DiscordVoiceChannelName != "vc" {
		t.Fatalf("unexpected discord channel fields: id=%s name=%s", payload.DiscordVoiceChannelID, payload.DiscordVoiceChannelName)
	}
	if payload.ParticipantDetails[0].DisplayName != "alice" || payload.ParticipantDetails[1].DisplayName != "bob" {
		t.Fatalf("participant details are not sorted or missing names: %+v", payload.ParticipantDetails)
	}
	if payload.StopReason != stopReasonManualSlash {
		t.Fatalf("unexpected stop reason: %s", payload.StopReason)
	}
	if payload.Timezone != "Asia/Tokyo" {
		t.Fatalf("unexpected timezone: %s", payload.Timezone)
	}
}

func TestSpeakerLabels_FallsBackToStoredValue(t *testing.T) {
	if got := testLabels.label("speaker_c"); got != "speaker_c" {
		t.Fatalf("unexpected label: %q", got)
	}
	if got := testLabels.label(""); got != "unknown" {
		t.Fatalf("unexpected label for empty speaker: %q", got)
	}
	if got := testLabels.line("speaker_b", "hi"); got != "[candidate] hi" {
		t.Fatalf("unexpected line: %q", got)
	}
}
