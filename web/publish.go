package web

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/queue"
	"github.com/ombekk/dugong/util"
)

// statusRequest is the authoring payload accepted from local clients.
// Exactly one of content, boostOf decides the status kind; choices turn
// a note into a poll.
type statusRequest struct {
	Content   string     `json:"content"`
	InReplyTo string     `json:"inReplyTo"`
	BoostOf   string     `json:"boostOf"`
	Sensitive bool       `json:"sensitive"`
	Choices   []string   `json:"choices"`
	EndsAt    *time.Time `json:"endsAt"`
}

// TokenAuthMiddleware guards the publishing API with the configured
// bearer token. An empty token keeps the API switched off entirely.
func TokenAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Publishing is not enabled on this server"})
			c.Abort()
			return
		}
		header := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(header), []byte("Bearer "+token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// handleCreateStatus accepts a new local status and hands it to the
// dispatcher. The response is 202: persistence, fan-out and remote
// delivery all happen in the worker pool.
func (s *Server) handleCreateStatus(c *gin.Context) {
	author, err := s.store.LocalActorByUsername(c.Param("username"))
	if err != nil {
		s.log.Error("Failed to look up author", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}
	if author == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No such user"})
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body"})
		return
	}
	if req.Content == "" && req.BoostOf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required"})
		return
	}

	id := uuid.New()
	st := domain.Status{
		Id:           id,
		URI:          fmt.Sprintf("https://%s/notes/%s", s.conf.Conf.SslDomain, id),
		ActorURI:     author.URI,
		Kind:         domain.KindNote,
		Content:      util.MarkdownLinksToHTML(util.NormalizeInput(req.Content)),
		InReplyToURI: req.InReplyTo,
		To:           []string{domain.PublicMarker},
		CC:           []string{author.FollowersURI},
		Local:        true,
		Sensitive:    req.Sensitive,
		CreatedAt:    time.Now(),
	}
	switch {
	case req.BoostOf != "":
		st.Kind = domain.KindBoost
		st.BoostOfURI = req.BoostOf
		st.Content = ""
	case len(req.Choices) > 0:
		st.Kind = domain.KindPoll
		st.PollChoices = req.Choices
		st.PollEndsAt = req.EndsAt
	}

	err = s.dispatcher.Submit(c.Request.Context(), queue.Job{
		ID:      "publish:" + st.URI,
		Payload: queue.PublishStatus{Status: st},
	})
	if err != nil {
		s.log.Error("Failed to queue status", "uri", st.URI, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not queue status"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": st.Id, "uri": st.URI})
}
