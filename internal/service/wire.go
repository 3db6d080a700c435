package service

import (
	"context"

	"github.com/fiveserver/fiveserver/internal/model"
)

// wire builds the payloads that differ between the two game
// generations. Handlers shared by both dialects go through it; the
// dialect-specific handlers use their concrete builder directly.
type wire interface {
	// playerInfo renders one lobby-occupant record for 0x4220/0x4222
	// and the 0x4212 user list.
	playerInfo(ctx context.Context, p *model.Player, roomID int32) ([]byte, error)

	// profileInfo renders a full profile card for 0x4103 and friends.
	profileInfo(ctx context.Context, profile *model.Profile) ([]byte, error)

	// rosterHash cuts the client roster hash out of the decrypted
	// auth payload.
	rosterHash(decrypted []byte) []byte

	// profileRecord renders one profile-slot record for 0x3012.
	profileRecord(p *model.Profile, games int32) []byte

	// chatPayload renders a 0x4402 chat frame body.
	chatPayload(chatType, special []byte, from *model.Profile, text string) []byte

	// replayChatType is the type prefix used when replaying history.
	replayChatType() []byte

	// roomUpdate pushes the room's current shape to every player in
	// its lobby.
	roomUpdate(room *model.Room)

	// challengeRoomUpdate is the room-update variant sent while a
	// challenge is being negotiated.
	challengeRoomUpdate(room *model.Room)

	// roomListEntry renders one 0x4302 record of the room list.
	roomListEntry(room *model.Room) []byte

	// greeting returns the news-service welcome text.
	greeting() string

	// newFeatures returns the announcement for a server version, if
	// one is configured.
	newFeatures(version string) (title, text string, ok bool)

	// serverList renders the 0x2003 endpoint directory for a game
	// build.
	serverList(gameName string) []byte
}

// byteBool renders a flag the way packed booleans go on the wire.
func byteBool(b bool) byte {
	if b {
		return 1
	}
	return 0
}
