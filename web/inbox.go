package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ombekk/dugong/federation"
	"github.com/ombekk/dugong/queue"
)

// handleInbox accepts a signed inbound activity, verifies the HTTP
// signature against the claimed actor's published key, and enqueues the
// body for asynchronous processing. Shared and per-user inboxes behave
// identically; addressing inside the activity decides the audience.
func (s *Server) handleInbox(c *gin.Context) {
	if c.GetHeader("Signature") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing signature"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var envelope struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid activity"})
		return
	}
	if envelope.ID == "" || envelope.Actor == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Activity missing id or actor"})
		return
	}

	actor, err := s.engine.Directory().Resolve(c.Request.Context(), envelope.Actor)
	if err != nil {
		s.log.Warn("Inbox: failed to resolve sender", "actor", envelope.Actor, "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify actor"})
		return
	}

	keyOwner, err := federation.VerifyRequest(c.Request, actor.PublicKeyPem)
	if err != nil {
		s.log.Warn("Inbox: signature verification failed", "actor", envelope.Actor, "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}
	if keyOwner != actor.URI {
		s.log.Warn("Inbox: key owner mismatch", "key", keyOwner, "actor", actor.URI)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	s.log.Info("Inbox: accepted activity", "type", envelope.Type, "actor", envelope.Actor)

	err = s.dispatcher.Submit(c.Request.Context(), queue.Job{
		ID:      "ingest:" + envelope.ID,
		Payload: queue.IngestActivity{Body: body, ActorURI: actor.URI},
	})
	if err != nil {
		s.log.Error("Inbox: failed to enqueue activity", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusAccepted)
}
