package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/madofuller/discordscraper/internal/security"
	"github.com/madofuller/discordscraper/internal/store"
)

const channelStatsCacheKey = "channels:stats"

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	status := "healthy"
	checks := gin.H{"database": "ok", "redis": "ok"}
	code := http.StatusOK

	if err := s.db.Pool.Ping(ctx); err != nil {
		checks["database"] = "unreachable"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	if s.redis == nil {
		checks["redis"] = "disabled"
	} else if err := s.redis.RDB().Ping(ctx).Err(); err != nil {
		// redis only backs caching and rate limits; the API still serves
		checks["redis"] = "unreachable"
		if status == "healthy" {
			status = "degraded"
		}
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func (s *Server) listChannels(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, channelStatsCacheKey); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	stats, err := s.store.ChannelStats(ctx)
	if err != nil {
		s.log.Error("channel_stats_failed", "error", err)
		s.internalError(c)
		return
	}

	body := gin.H{"channels": stats, "count": len(stats)}
	if s.redis != nil {
		if raw, err := json.Marshal(body); err == nil {
			_ = s.redis.Set(ctx, channelStatsCacheKey, raw, time.Minute)
		}
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) listChannelMessages(c *gin.Context) {
	channelID, err := security.ParseSnowflake(c.Param("channel_id"))
	if err != nil {
		s.badRequest(c, "invalid channel_id")
		return
	}

	filter, ok := s.parseMessageFilter(c)
	if !ok {
		return
	}
	filter.ChannelID = channelID

	s.writeMessages(c, filter)
}

func (s *Server) listSubnetMessages(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		s.badRequest(c, "missing subnet name")
		return
	}

	filter, ok := s.parseMessageFilter(c)
	if !ok {
		return
	}
	filter.SubnetName = name

	s.writeMessages(c, filter)
}

func (s *Server) writeMessages(c *gin.Context, filter store.MessageFilter) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	messages, err := s.store.Messages(ctx, filter)
	if err != nil {
		s.log.Error("message_query_failed", "error", err)
		s.internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (s *Server) getMessage(c *gin.Context) {
	messageID, err := security.ParseSnowflake(c.Param("message_id"))
	if err != nil {
		s.badRequest(c, "invalid message_id")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	msg, err := s.store.Message(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		s.notFound(c, "message not found")
		return
	}
	if err != nil {
		s.log.Error("message_fetch_failed", "message_id", messageID, "error", err)
		s.internalError(c)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// updateMessage applies an edit to an already-stored message. Fields left
// out of the body are kept as stored.
func (s *Server) updateMessage(c *gin.Context) {
	messageID, err := security.ParseSnowflake(c.Param("message_id"))
	if err != nil {
		s.badRequest(c, "invalid message_id")
		return
	}

	var body struct {
		Content         *string    `json:"content"`
		EditedTimestamp *time.Time `json:"edited_timestamp"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, "invalid request body")
		return
	}
	if body.Content == nil && body.EditedTimestamp == nil {
		s.badRequest(c, "nothing to update")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	found, err := s.store.UpdateMessage(ctx, messageID, body.Content, body.EditedTimestamp)
	if err != nil {
		s.log.Error("message_update_failed", "message_id", messageID, "error", err)
		s.internalError(c)
		return
	}
	if !found {
		s.notFound(c, "message not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// deleteMessage soft-deletes; the row stays queryable with
// include_deleted=true. Re-deleting an already-deleted message succeeds.
func (s *Server) deleteMessage(c *gin.Context) {
	messageID, err := security.ParseSnowflake(c.Param("message_id"))
	if err != nil {
		s.badRequest(c, "invalid message_id")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	found, err := s.store.MarkDeleted(ctx, messageID)
	if err != nil {
		s.log.Error("message_delete_failed", "message_id", messageID, "error", err)
		s.internalError(c)
		return
	}
	if !found {
		s.notFound(c, "message not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) listSubnets(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	subnets, err := s.store.Subnets(ctx)
	if err != nil {
		s.log.Error("subnet_query_failed", "error", err)
		s.internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subnets": subnets, "count": len(subnets)})
}

func (s *Server) listBackfillJobs(c *gin.Context) {
	var channelID int64
	if raw := c.Query("channel_id"); raw != "" {
		id, err := security.ParseSnowflake(raw)
		if err != nil {
			s.badRequest(c, "invalid channel_id")
			return
		}
		channelID = id
	}
	status := c.Query("status")

	ctx, cancel := s.ctx(c)
	defer cancel()

	jobs, err := s.store.BackfillJobs(ctx, channelID, status)
	if err != nil {
		s.log.Error("backfill_job_query_failed", "error", err)
		s.internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// parseMessageFilter reads the shared listing query parameters. On a bad
// parameter it writes a 400 and returns ok=false. The default limit is
// resolved here so responses echo the limit actually applied.
func (s *Server) parseMessageFilter(c *gin.Context) (store.MessageFilter, bool) {
	filter := store.MessageFilter{Limit: 100}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			s.badRequest(c, "limit must be between 1 and 1000")
			return filter, false
		}
		filter.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(c, "offset must be non-negative")
			return filter, false
		}
		filter.Offset = n
	}
	if raw := c.Query("author_id"); raw != "" {
		id, err := security.ParseSnowflake(raw)
		if err != nil {
			s.badRequest(c, "invalid author_id")
			return filter, false
		}
		filter.AuthorID = id
	}
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.badRequest(c, "before must be RFC3339")
			return filter, false
		}
		filter.Before = &t
	}
	if raw := c.Query("after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.badRequest(c, "after must be RFC3339")
			return filter, false
		}
		filter.After = &t
	}
	filter.Search = c.Query("search")
	filter.IncludeDeleted = c.Query("include_deleted") == "true"

	return filter, true
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{"code": "bad_request", "message": msg},
	})
}

func (s *Server) notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": gin.H{"code": "not_found", "message": msg},
	})
}

func (s *Server) internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": "internal", "message": "internal server error"},
	})
}
