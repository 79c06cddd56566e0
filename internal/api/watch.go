package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pill-reminder/internal/database"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type watchMessage struct {
	Exists bool                 `json:"exists"`
	Record database.DailyRecord `json:"record"`
}

// watchRecord streams the current value of one day's record over a websocket.
func (s *Server) watchRecord(c *gin.Context) {
	dayKey := c.Param("dayKey")

	// one slot: a slow client only ever gets the newest value
	updates := make(chan watchMessage, 1)
	offer := func(rec database.DailyRecord, exists bool) {
		msg := watchMessage{Exists: exists, Record: rec}
		select {
		case updates <- msg:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- msg
		}
	}

	ctx := c.Request.Context()
	unsubscribe, err := s.services.Intake.Watch(ctx, dayKey, offer)
	if err != nil {
		writeError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()
	for {
		select {
		case msg := <-updates:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("⚠️ Watch %s: write failed: %v", dayKey, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
