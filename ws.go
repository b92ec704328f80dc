package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type watcher struct {
	conn *websocket.Conn
	send chan any
}

type watchGroup struct {
	watchers map[*watcher]bool
	running  bool
}

// watchManager pushes public game state to websocket watchers (shared
// displays, spectators). One pump goroutine per watched game polls the
// engine, which also drives the lazy buzzer timeout while anyone is
// watching; the pump stops when the last watcher leaves or the game ends.
type watchManager struct {
	cfg    *Config
	engine *Engine

	mu     sync.Mutex
	groups map[string]*watchGroup
}

func newWatchManager(cfg *Config, engine *Engine) *watchManager {
	return &watchManager{
		cfg:    cfg,
		engine: engine,
		groups: make(map[string]*watchGroup),
	}
}

func (m *watchManager) watch(gameID string, w *watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[gameID]
	if !ok {
		group = &watchGroup{watchers: make(map[*watcher]bool)}
		m.groups[gameID] = group
	}

	group.watchers[w] = true

	if !group.running {
		group.running = true
		go m.pumpLoop(gameID, group)
	}
}

func (m *watchManager) unwatch(gameID string, w *watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[gameID]
	if !ok {
		return
	}

	if group.watchers[w] {
		delete(group.watchers, w)
		close(w.send)
	}
}

// pumpLoop polls the engine twice per buzzer-window tick and fans the public
// view out to every watcher of one game.
func (m *watchManager) pumpLoop(gameID string, group *watchGroup) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		view, err := m.engine.PublicState(context.Background(), gameID, "")

		m.mu.Lock()

		if len(group.watchers) == 0 {
			group.running = false
			delete(m.groups, gameID)
			m.mu.Unlock()
			return
		}

		if err != nil {
			if errors.Is(err, ErrGameNotFound) {
				for w := range group.watchers {
					select {
					case w.send <- map[string]any{"error": ErrGameNotFound.Error(), "ended": true}:
					default:
					}
					delete(group.watchers, w)
					close(w.send)
				}
				group.running = false
				delete(m.groups, gameID)
				m.mu.Unlock()
				return
			}

			m.mu.Unlock()
			continue
		}

		for w := range group.watchers {
			select {
			case w.send <- view:
			default:
				// Watcher is slow/full - drop them.
				delete(group.watchers, w)
				close(w.send)
			}
		}

		m.mu.Unlock()
	}
}

func serveGameWS(cfg *Config, watch *watchManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &watcher{
			conn: conn,
			send: make(chan any, 8),
		}

		watch.watch(gameID, client)

		go client.writePump()
		client.readPump(gameID, watch)
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice the close handshake and unregister the watcher.
func (c *watcher) readPump(gameID string, watch *watchManager) {
	defer func() {
		watch.unwatch(gameID, c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *watcher) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
