package http

import (
	"math/rand"
	"net/http"
	"sync"

	"fanfrenzy/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Content    *app.ContentService
	Catalog    *app.CatalogService
	Scores     *app.ScoreService
	Challenges *app.ChallengeService
	Play       *app.PlayService
}

type Options struct {
	AllowedOrigins []string
	// Verifier may be nil; every request is then anonymous.
	Verifier *TokenVerifier
	// Rand fixes the shuffle-mode order in tests.
	Rand *rand.Rand
	// Ready backs /readyz; nil means always ready.
	Ready func() error
}

type Server struct {
	svc      Services
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
	engine   *gin.Engine

	rndMu sync.Mutex
}

func NewServer(svc Services, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	registerValidators()
	s := &Server{
		svc:  svc,
		opts: opts,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.log), RequestLogger(s.log), CORS(s.opts.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", s.readyz)

	api := r.Group("/api", OptionalAuth(s.opts.Verifier))
	{
		api.GET("/daily", s.getDaily)
		api.GET("/game", s.getGame)
		api.GET("/games", s.getGames)
		api.POST("/scores", s.postScore)
		api.GET("/leaderboard", s.getLeaderboard)
		api.POST("/challenges", s.postChallenge)
	}

	ws := r.Group("/ws", OptionalAuth(s.opts.Verifier))
	{
		ws.GET("/play", s.servePlay)
		ws.GET("/leaderboard", s.serveLeaderboard)
	}
	return r
}

func (s *Server) readyz(c *gin.Context) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(); err != nil {
			s.log.Warn("not ready", zap.Error(err))
			jsonError(c, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	c.String(http.StatusOK, "ok")
}
