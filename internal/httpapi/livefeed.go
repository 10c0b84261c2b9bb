package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cgarena/internal/arena"
)

// LiveFeed is an additive, non-spec-mandated convenience: a
// gorilla/websocket broadcast of periodic FetchStatus snapshots, so a
// browser client can watch the leaderboard update without polling.
// Wholly optional; the JSON/HTTP surface above is the contract
// SPEC_FULL.md actually requires.
type LiveFeed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewLiveFeed() *LiveFeed {
	return &LiveFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (f *LiveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("livefeed: upgrade failed: %v", err)
		return
	}
	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()

	// Drain and discard incoming frames until the client disconnects,
	// so the server notices closed connections promptly.
	go func() {
		defer f.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *LiveFeed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	delete(f.clients, conn)
	f.mu.Unlock()
	conn.Close()
}

func (f *LiveFeed) broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// Run periodically broadcasts a FetchStatus snapshot to every
// connected client until ctx is cancelled.
func (f *LiveFeed) Run(ctx context.Context, a *arena.Arena, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := a.FetchStatus(ctx)
			if err != nil {
				continue
			}
			f.broadcast(status)
		}
	}
}
