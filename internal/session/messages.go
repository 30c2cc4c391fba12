package session

import (
	"fmt"
	"strings"
)

const (
	commandKikitori     = "kikitori"
	commandKikitoriStop = "kikitori-stop"

	slashCommandStartDescription = "あなたがいるボイスチャンネルで話者別の文字起こしを開始します。"
	slashCommandStopDescription  = "あなたがいるボイスチャンネルの文字起こしを中止します。"

	messageEphemeralWrongGuild        = ":warning: **このサーバーでは実行できません。**"
	messageEphemeralUnknownCommand    = ":warning: **不明なコマンドです。**"
	messageEphemeralVoiceLookupFailed = ":warning: **ボイスチャンネルの参加状態の確認に失敗しました。**"
	messageEphemeralJoinVCFirst       = ":warning: **ボイスチャンネルに参加してから実行してください。**"
	messageEphemeralAlreadyRunning    = ":warning: **このボイスチャンネルでは既に文字起こしが実行中です。**"
	messageEphemeralBusyInGuild       = ":warning: **このサーバーの別のボイスチャンネルで文字起こしが実行中です。**"
	messageEphemeralStartFailed       = ":warning: **文字起こしの開始に失敗しました。**"
	messageEphemeralNotRunning        = ":warning: **現在このボイスチャンネルでは文字起こしは実行されていません。**"
	messagePoweredByLine              = "-# *Powered by [Kikitori](https://github.com/foxseedlab/kikitori)*"

	messageStartChannelTitle = ":microphone2: **文字起こしを開始しました。**"
	messageStartChannelHint  = "-# /kikitori-stop コマンドで中止できます。"

	messageStopChannelTitle = ":pause_button:  **文字起こしを中止しました。**"
	messageStopRestart      = "/kikitori コマンドで開始できます。"
	messageStopRestartAgain = "/kikitori コマンドで再度開始できます。"

	messageAttachmentTitle = ":page_facing_up:  **文字起こしの内容**"

	messageStartEphemeralTitleFormat = ":hourglass: <#%s> **で参加者を待っています。**"
	messageStopEphemeralTitleFormat  = ":pause_button:  <#%s> **の文字起こしを中止しました。**"

	messageStartEphemeralSecondLine = "-# 話者が揃うとボイスチャンネルのチャットに文字起こしが表示されます。"
	messageStartEphemeralHint       = "-# /kikitori-stop コマンドで中止できます。"
	messageStopEphemeralHint        = "-# /kikitori コマンドで開始できます。"

	messageStartFailedFormat = ":warning: <@%s> **文字起こしを開始できませんでした。** %s"
)

const (
	stopReasonMaxDuration      = "max_duration"
	stopReasonManualSlash      = "manual_slash"
	stopReasonParticipantsLeft = "participants_left"
	stopReasonServerClosed     = "server_closed"
	stopReasonUnknownError     = "unknown_error"
	stopReasonDiscoveryTimeout = "discovery_timeout"
	stopReasonNoSpeakers       = "no_tracked_speakers"
)

func startChannelMessage() string {
	return strings.Join([]string{messageStartChannelTitle, messageStartChannelHint, messagePoweredByLine}, "\n")
}

func stopChannelMessage(reason string) string {
	restart := messageStopRestart
	if stopReasonNeedsRestartAgain(reason) {
		restart = messageStopRestartAgain
	}
	return strings.Join([]string{messageStopChannelTitle, "-# " + stopReasonDetail(reason), "-# " + restart}, "\n")
}

func transcriptAttachmentMessage() string {
	return messageAttachmentTitle + "\n" + messagePoweredByLine
}

func startEphemeralMessage(channelID string) string {
	return strings.Join([]string{startEphemeralTitle(channelID), messageStartEphemeralSecondLine, messageStartEphemeralHint}, "\n")
}

func stopEphemeralMessage(channelID string) string {
	return stopEphemeralTitle(channelID) + "\n" + messageStopEphemeralHint
}

func startEphemeralTitle(channelID string) string {
	return fmt.Sprintf(messageStartEphemeralTitleFormat, channelID)
}

func stopEphemeralTitle(channelID string) string {
	return fmt.Sprintf(messageStopEphemeralTitleFormat, channelID)
}

func startFailedMessage(userID, reason string) string {
	return fmt.Sprintf(messageStartFailedFormat, userID, stopReasonDetail(reason))
}

func stopReasonDetail(reason string) string {
	switch reason {
	case stopReasonMaxDuration:
		return "文字起こしの最大制限時間に到達しました。"
	case stopReasonManualSlash:
		return "参加者に終了コマンドを実行されました。"
	case stopReasonParticipantsLeft:
		return "話者がボイスチャンネルから退出しました。"
	case stopReasonServerClosed:
		return "文字起こしサーバーが閉じられました。"
	case stopReasonDiscoveryTimeout:
		return "制限時間内に2人の参加者が揃いませんでした。"
	case stopReasonNoSpeakers:
		return "話者の役割に一致する参加者がいませんでした。"
	default:
		return "不明なエラーが発生しました。"
	}
}

func stopReasonNeedsRestartAgain(reason string) bool {
	switch reason {
	case stopReasonMaxDuration, stopReasonServerClosed, stopReasonUnknownError:
		return true
	default:
		return false
	}
}
