// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/sudokuduel/internal/auth"
	"github.com/jason-s-yu/sudokuduel/internal/cache"
	"github.com/jason-s-yu/sudokuduel/internal/game"
	"github.com/jason-s-yu/sudokuduel/internal/identity"
	"github.com/jason-s-yu/sudokuduel/internal/ledger"
	"github.com/jason-s-yu/sudokuduel/internal/metrics"
	"github.com/jason-s-yu/sudokuduel/internal/middleware"
	"github.com/jason-s-yu/sudokuduel/internal/room"
	"github.com/jason-s-yu/sudokuduel/internal/stats"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// APIServer holds the services behind the HTTP and WebSocket surface.
type APIServer struct {
	Identity *identity.Ledger
	Rooms    *room.Registry
	Machine  *game.Machine
	Moves    *ledger.Ledger
	Stats    *stats.Aggregator
	Issuer   *auth.Issuer
	Feed     cache.Subscriber
	Metrics  *metrics.Metrics

	// PublicURL prefixes invite links, e.g. https://duel.example.com.
	PublicURL string
	// MaxLives seeds replay when serving a room's result.
	MaxLives int

	logger *logrus.Logger
}

// NewAPIServer returns a server; callers fill the exported service fields.
func NewAPIServer(logger *logrus.Logger) *APIServer {
	return &APIServer{logger: logger}
}

// Handler builds the router wrapped in request logging.
func (s *APIServer) Handler() http.Handler {
	router := httprouter.New()

	router.POST("/users", s.CreateUserHandler)
	router.GET("/users/me", s.MeHandler)
	router.GET("/players/:uid/stats", s.StatsHandler)

	router.POST("/rooms", s.CreateRoomHandler)
	router.GET("/rooms/:code", s.GetRoomHandler)
	router.POST("/rooms/:code/join", s.JoinRoomHandler)
	router.POST("/rooms/:code/start", s.StartGameHandler)
	router.POST("/rooms/:code/moves", s.ApplyMoveHandler)
	router.GET("/rooms/:code/moves", s.ListMovesHandler)
	router.GET("/rooms/:code/result", s.ResultHandler)
	router.GET("/rooms/:code/qr", s.QRHandler)
	router.GET("/rooms/:code/ws", s.RoomWSHandler)

	router.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	return middleware.LogMiddleware(s.logger)(router)
}
