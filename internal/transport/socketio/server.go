// Package socketio provides the Socket.io server for the menu bar UI.
package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"cadenza/internal/domain/device"
	"cadenza/internal/domain/history"
	"cadenza/internal/domain/player"
	"cadenza/internal/gateway"
)

// Authorizer runs the authorization lifecycle commands.
type Authorizer interface {
	Authorize(ctx context.Context) error
	Reset() error
}

// Server handles Socket.io connections and events.
type Server struct {
	io      *socket.Server
	gw      *gateway.Gateway
	states  *player.Store
	hist    *history.Cache
	auth    Authorizer
	mu      sync.RWMutex
	clients map[string]*socket.Socket
	limited bool
}

// NewServer creates a new Socket.io server.
func NewServer(gw *gateway.Gateway, states *player.Store, hist *history.Cache, auth Authorizer) (*Server, error) {
	// Configure Socket.io server options
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:      server,
		gw:      gw,
		states:  states,
		hist:    hist,
		auth:    auth,
		clients: make(map[string]*socket.Socket),
	}

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushHistory(client)
		}()

		// Handle disconnect
		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		client.On("getHistory", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getHistory")
			s.pushHistory(client)
		})

		// Playback control events
		client.On("playPause", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("playPause")
			if err := s.gw.PlayPause(context.Background()); err != nil {
				log.Error().Err(err).Msg("PlayPause failed")
			}
		})

		client.On("next", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("next")
			if err := s.gw.Next(context.Background()); err != nil {
				log.Error().Err(err).Msg("Next failed")
			}
		})

		client.On("previous", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("previous")
			if err := s.gw.Previous(context.Background()); err != nil {
				log.Error().Err(err).Msg("Previous failed")
			}
		})

		client.On("setShuffle", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("setShuffle")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if v, ok := m["value"].(bool); ok {
						if err := s.gw.SetShuffle(context.Background(), v); err != nil {
							log.Error().Err(err).Msg("SetShuffle failed")
						}
					}
				}
			}
		})

		client.On("setRepeat", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("setRepeat")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if mode, ok := m["value"].(string); ok {
						if err := s.gw.SetRepeat(context.Background(), mode); err != nil {
							log.Error().Err(err).Msg("SetRepeat failed")
						}
					}
				}
			}
		})

		client.On("setVolume", func(args ...any) {
			if len(args) > 0 {
				if vol, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("vol", vol).Msg("setVolume")
					if err := s.gw.SetVolume(context.Background(), int(vol)); err != nil {
						log.Error().Err(err).Msg("SetVolume failed")
					}
				}
			}
		})

		client.On("toggleLike", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("toggleLike")
			if err := s.gw.ToggleLike(context.Background()); err != nil {
				log.Error().Err(err).Msg("ToggleLike failed")
			} else {
				s.BroadcastHistory()
			}
		})

		client.On("addToPlaylist", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("addToPlaylist")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if id, ok := m["playlistId"].(string); ok {
						if err := s.gw.AddToPlaylist(context.Background(), id); err != nil {
							log.Error().Err(err).Msg("AddToPlaylist failed")
						}
					}
				}
			}
		})

		client.On("getDevices", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getDevices")
			list, def, err := s.gw.Devices(context.Background())
			if err != nil {
				log.Error().Err(err).Msg("Devices failed")
				return
			}
			payload := map[string]interface{}{"devices": list}
			if def != nil {
				payload["default"] = def
			}
			client.Emit("pushDevices", payload)
		})

		client.On("transferTo", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("transferTo")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					ref := device.Ref{}
					ref.ID, _ = m["id"].(string)
					ref.Name, _ = m["name"].(string)
					if ref.ID == "" {
						return
					}
					if err := s.gw.TransferTo(context.Background(), ref); err != nil {
						log.Error().Err(err).Msg("TransferTo failed")
					}
				}
			}
		})

		// Authorization lifecycle events
		client.On("authorize", func(args ...any) {
			log.Info().Str("id", clientID).Msg("authorize")
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				if err := s.auth.Authorize(ctx); err != nil {
					log.Error().Err(err).Msg("Authorization failed")
				}
			}()
		})

		client.On("resetAuth", func(args ...any) {
			log.Info().Str("id", clientID).Msg("resetAuth")
			if err := s.auth.Reset(); err != nil {
				log.Error().Err(err).Msg("Reset authorization failed")
			}
			s.states.Set(player.NotPlaying("Please Authorize"))
		})
	})
}

// statePayload renders the state plus the transient rate-limit flag.
func (s *Server) statePayload() map[string]interface{} {
	out := s.states.Current().ToJSON()

	s.mu.RLock()
	out["rateLimited"] = s.limited
	s.mu.RUnlock()

	return out
}

// pushState sends current state to a client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushPlaybackState", s.statePayload())
}

// pushHistory sends the track history to a client.
func (s *Server) pushHistory(client *socket.Socket) {
	client.Emit("pushHistory", s.hist.Tracks())
}

// BroadcastState sends state to all connected clients.
func (s *Server) BroadcastState() {
	payload := s.statePayload()
	s.io.Emit("pushPlaybackState", payload)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(payload)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastHistory sends the track history to all connected clients.
func (s *Server) BroadcastHistory() {
	s.io.Emit("pushHistory", s.hist.Tracks())
}

// SetRateLimited records the governor's limited flag and notifies clients.
func (s *Server) SetRateLimited(limited bool) {
	s.mu.Lock()
	s.limited = limited
	s.mu.Unlock()

	s.io.Emit("pushRateLimited", map[string]interface{}{"limited": limited})
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.io.Close(nil)
	return nil
}
