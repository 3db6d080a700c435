package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

// newsHandlers serve the pre-login ports: message of the day, the
// endpoint directory and the server clock. Everything here runs
// before authentication, so no player state is touched.
type newsHandlers struct {
	world *World
	wire  wire
}

func (h *newsHandlers) getNews(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x2009, zeros(4))
	cfg := h.world.Config()
	switch {
	case h.world.Banned().IsBanned(c.IP()):
		title := fmt.Sprintf("%s (v%s)", cfg.ServerName, config.Version)
		text := "Sorry, but you are currently banned\r\n" +
			"from playing on this server. Please\r\n" +
			"contact server administrator if you\r\n" +
			"believe that there was a mistake."
		c.Send(0x200a, newsPayload(title, text, true))
	case h.world.AtCapacity():
		title := fmt.Sprintf("%s (v%s)", cfg.ServerName, config.Version)
		text := fmt.Sprintf(
			"Sorry, but the server is currently at capacity.\r\n"+
				"We already have a maximum of %d users logged in,\r\n"+
				"so please come back at a later time.\r\n"+
				"Thanks.\r\n", h.world.NumUsersOnline())
		c.Send(0x200a, newsPayload(title, text, true))
	default:
		title := fmt.Sprintf("SYSTEM: %s v%s", cfg.ServerName, config.Version)
		c.Send(0x200a, newsPayload(title, h.wire.greeting(), false))
		if title, text, ok := h.wire.newFeatures(config.Version); ok {
			c.Send(0x200a, newsPayload(title, text, false))
		}
	}
	c.Send(0x200b, nil)
	return nil
}

// newsPayload renders one 0x200a notice. Padded bodies fill the whole
// 512-byte text field; unpadded ones end where the text does.
func newsPayload(title, text string, padText bool) []byte {
	wr := protocol.NewWriter(90 + len(text))
	wr.WriteZeros(4)
	wr.Write([]byte{1, 1})
	wr.WriteString(time.Now().UTC().Format("2006-01-02 15:04:05"), 19)
	wr.WriteString(title, 64)
	if padText {
		wr.WriteString(text, 512)
	} else {
		if len(text) > 512 {
			text = text[:512]
		}
		wr.Write([]byte(text))
	}
	return wr.Bytes()
}

func (h *newsHandlers) getServerList(ctx context.Context, c Conn, f protocol.Frame) error {
	gameName, ok := h.gameNameForPort(c.LocalPort())
	if !ok {
		slog.Warn("server list requested on unmapped port", "port", c.LocalPort())
		return nil
	}
	c.Send(0x2002, zeros(4))
	c.Send(0x2003, h.wire.serverList(gameName))
	c.Send(0x2004, zeros(4))
	return nil
}

func (h *newsHandlers) gameNameForPort(port int) (string, bool) {
	for name, p := range h.world.Config().GamePorts {
		if p == port {
			return name, true
		}
	}
	return "", false
}

func (h *newsHandlers) getTime(ctx context.Context, c Conn, f protocol.Frame) error {
	wr := protocol.NewWriter(4)
	wr.WriteUint32(uint32(time.Now().Unix()))
	c.Send(0x2007, wr.Bytes())
	return nil
}

func (h *newsHandlers) getWebServerList(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x2201, zeros(4))
	c.Send(0x2203, zeros(4))
	return nil
}
