package service

import (
	"strings"
	"time"

	"github.com/fiveserver/fiveserver/internal/model"
)

// chatReplayDelay gives a client entering a lobby time to set up its
// chat view before the history arrives.
const chatReplayDelay = 3 * time.Second

// blockedMessage replaces chat lines caught by the banned-word list.
const blockedMessage = "[message blocked: banned word]"

func filterBannedWords(words []string, text string) string {
	if len(words) == 0 {
		return text
	}
	lower := strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return blockedMessage
		}
	}
	return text
}

// sendChatHistory replays the lobby chat to one player. Private
// messages are replayed only to their two parties.
func sendChatHistory(d wire, lobby *model.Lobby, p *model.Player) {
	if lobby == nil || p == nil {
		return
	}
	for _, msg := range lobby.ChatHistory {
		special := []byte{0, 0, 0, 0}
		if msg.To != nil {
			if !msg.VisibleTo(p.Profile.ID) {
				continue
			}
			special = msg.Special
		}
		p.Send(0x4402, d.chatPayload(d.replayChatType(), special, msg.From, msg.Text))
	}
}

// broadcastSystemChat records a system line in the lobby history and
// fans it out to the occupants.
func broadcastSystemChat(d wire, lobby *model.Lobby, text string) {
	msg := &model.ChatMessage{From: model.SystemProfile, Text: text, When: time.Now()}
	lobby.AddChat(msg)
	body := d.chatPayload(d.replayChatType(), []byte{0, 0, 0, 0}, msg.From, msg.Text)
	for _, p := range lobby.Players {
		p.Send(0x4402, body)
	}
}

// scheduleChatReplay runs sendChatHistory after chatReplayDelay. The
// replay is dropped when the player left the lobby in the meantime.
func scheduleChatReplay(w *World, d wire, lobby *model.Lobby, p *model.Player) {
	time.AfterFunc(chatReplayDelay, func() {
		w.Lock()
		defer w.Unlock()
		if p.Lobby != lobby {
			return
		}
		sendChatHistory(d, lobby, p)
	})
}
