package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/ombekk/dugong/db"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/federation"
	"github.com/ombekk/dugong/queue"
	"github.com/ombekk/dugong/util"
	"golang.org/x/time/rate"
)

// Server is the federation-facing HTTP surface of the node. Inbound
// activities are verified here and handed to the dispatcher; everything
// heavier happens in the worker pool.
type Server struct {
	store      *db.DB
	engine     *federation.Engine
	dispatcher *queue.Dispatcher
	conf       *util.AppConfig
	log        *log.Logger
}

func NewServer(store *db.DB, engine *federation.Engine, dispatcher *queue.Dispatcher, conf *util.AppConfig, logger *log.Logger) *Server {
	return &Server{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		conf:       conf,
		log:        logger,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/feed", s.handleFeed)

	g.GET("/api/users/:username/timelines/:timeline", s.handleTimeline)
	g.GET("/api/users/:username/notifications", s.handleNotifications)
	g.GET("/api/statuses/:id/votes", s.handleVoteCounts)
	g.POST("/api/users/:username/statuses", TokenAuthMiddleware(s.conf.Conf.ApiToken), s.handleCreateStatus)

	if s.conf.Conf.WithAp {
		// Stricter rate limit for federation endpoints: 5 req/sec per IP
		apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
		maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

		g.GET("/.well-known/webfinger", s.handleWebfinger)
		g.GET("/.well-known/nodeinfo", s.handleNodeinfoIndex)
		g.GET("/nodeinfo/2.0", s.handleNodeinfo)

		g.GET("/users/:username", s.handleActor)
		g.GET("/users/:username/outbox", s.handleOutbox)
		g.GET("/users/:username/followers", s.handleFollowers)
		g.GET("/users/:username/following", s.handleFollowing)
		g.GET("/notes/:id", s.handleStatusObject)

		g.POST("/inbox", apLimiter, maxBodySize, s.handleInbox)
		g.POST("/users/:username/inbox", apLimiter, maxBodySize, s.handleInbox)
	}

	return g
}

// Run serves the router until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.conf.Conf.HttpPort)
	s.log.Info("Starting HTTP server", "addr", addr, "federation", s.conf.Conf.WithAp)
	return s.Router().Run(addr)
}

// handleTimeline returns one stored timeline page for a local viewer.
func (s *Server) handleTimeline(c *gin.Context) {
	actor, err := s.store.LocalActorByUsername(c.Param("username"))
	if err != nil {
		s.log.Error("Timeline lookup failed", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}

	timeline := c.Param("timeline")
	known := false
	for _, name := range domain.Timelines {
		if name == timeline {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown timeline"})
		return
	}

	before := time.Now()
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before timestamp"})
			return
		}
		before = t
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	statuses, err := s.store.Timeline(actor.URI, timeline, before, limit)
	if err != nil {
		s.log.Error("Timeline query failed", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, statuses)
}

func (s *Server) handleNotifications(c *gin.Context) {
	actor, err := s.store.LocalActorByUsername(c.Param("username"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}

	notifications, err := s.store.Notifications(actor.URI, 50)
	if err != nil {
		s.log.Error("Notification query failed", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, notifications)
}

func (s *Server) handleVoteCounts(c *gin.Context) {
	st, ok := s.statusByIdParam(c)
	if !ok {
		return
	}

	counts, err := s.store.PollVoteCounts(st.URI)
	if err != nil {
		s.log.Error("Vote count query failed", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, counts)
}
