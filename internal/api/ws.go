package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// streamTx upgrades to a websocket and pushes tracker snapshots until the
// final one, then closes normally.
func (s *Server) streamTx(c *gin.Context) {
	if s.deps.Tracker == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	hash, ok := hashParam(c)
	if !ok {
		return
	}
	if _, found := s.deps.Tracker.Status(hash); !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "transaction not tracked"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("hash", hash.Hex()).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe, found := s.deps.Tracker.Subscribe(hash)
	if !found {
		closeWS(conn, websocket.CloseNormalClosure, "transaction not tracked")
		return
	}
	defer unsubscribe()

	// drain client frames so close and ping frames are processed
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case snap, open := <-updates:
			if !open {
				closeWS(conn, websocket.CloseNormalClosure, "tracking finished")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug().Err(err).Str("hash", hash.Hex()).Msg("websocket write failed")
				return
			}
		}
	}
}

func closeWS(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
