package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mlgrupo/convert/queue"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only status information, same as the homepage.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const pingPeriod = 30 * time.Second

// liveEvents upgrades the connection to a websocket and streams queue
// lifecycle events to it. The first frame is a full queue status
// snapshot; every later frame is one event.
func liveEvents(q *queue.Queue) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("live: upgrade failed: %s", err)
			return
		}
		events := q.Subscribe()
		defer q.Unsubscribe(events)
		defer conn.Close()

		// Drain client frames so closes are noticed.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := conn.WriteJSON(q.Status()); err != nil {
			return
		}
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case e := <-events:
				if err := conn.WriteJSON(e); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
