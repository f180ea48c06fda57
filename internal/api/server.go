// Package api exposes the read-only query surface over the stored
// archive: channel stats, filtered message listings, subnets and
// backfill jobs.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/madofuller/discordscraper/internal/config"
	"github.com/madofuller/discordscraper/internal/db"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/redis"
	"github.com/madofuller/discordscraper/internal/store"
)

// Store is the slice of the persistence layer the API serves.
// *store.Store satisfies it; handler tests drive an in-memory fake.
type Store interface {
	Messages(ctx context.Context, f store.MessageFilter) ([]models.Message, error)
	Message(ctx context.Context, messageID int64) (*models.Message, error)
	UpdateMessage(ctx context.Context, messageID int64, content *string, editedAt *time.Time) (bool, error)
	MarkDeleted(ctx context.Context, messageID int64) (bool, error)
	ChannelStats(ctx context.Context) ([]models.ChannelStats, error)
	Subnets(ctx context.Context) ([]models.Subnet, error)
	BackfillJobs(ctx context.Context, channelID int64, status string) ([]models.BackfillJob, error)
}

type Server struct {
	log    *slog.Logger
	db     *db.DB
	redis  *redis.Client
	store  Store
	cfg    config.Config
	router *gin.Engine
}

func NewServer(log *slog.Logger, dbConn *db.DB, redisClient *redis.Client, st Store, cfg config.Config) *Server {
	s := &Server{
		log:    log,
		db:     dbConn,
		redis:  redisClient,
		store:  st,
		cfg:    cfg,
		router: gin.New(),
	}

	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	v1 := r.Group("/api/v1")
	v1.GET("/health", s.health)

	authed := v1.Group("")
	authed.Use(s.apiKeyMiddleware())
	{
		authed.GET("/channels", s.listChannels)
		authed.GET("/channels/:channel_id/messages", s.listChannelMessages)
		authed.GET("/messages/:message_id", s.getMessage)
		authed.PATCH("/messages/:message_id", s.updateMessage)
		authed.DELETE("/messages/:message_id", s.deleteMessage)
		authed.GET("/subnets", s.listSubnets)
		authed.GET("/subnets/:name/messages", s.listSubnetMessages)
		authed.GET("/backfill-jobs", s.listBackfillJobs)
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
