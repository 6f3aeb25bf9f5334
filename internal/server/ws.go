package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The backend binds to the lab network only.
		return true
	},
}

// handleLogStream upgrades to a websocket and pushes incremental log
// content for ?protocol= as it appears. Each text frame is one raw
// chunk; the client splits lines itself, matching the read-log
// contract.
func (s *Server) handleLogStream(c *gin.Context) {
	protocol := c.Query("protocol")
	if protocol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "protocol query parameter is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("websocket upgrade failed: %v", err)
		}
		return
	}
	defer conn.Close()

	if s.logger != nil {
		s.logger.Info("log stream opened for %s from %s", protocol, c.ClientIP())
	}

	// Reader goroutine notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var pos int64
	for {
		select {
		case <-closed:
			if s.logger != nil {
				s.logger.Info("log stream closed for %s", protocol)
			}
			return
		case <-ticker.C:
			content, next, err := s.readLogFrom(protocol, pos)
			if err != nil {
				if s.logger != nil {
					s.logger.Debug("log stream read failed: %v", err)
				}
				continue
			}
			pos = next
			if content == "" {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
				return
			}
		}
	}
}
