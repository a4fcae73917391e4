package web

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/federation"
)

// statusByIdParam loads a local status addressed by its row id.
func (s *Server) statusByIdParam(c *gin.Context) (*domain.Status, bool) {
	statusId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid status ID"})
		return nil, false
	}

	st, err := s.store.StatusById(statusId)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return nil, false
	}
	if st == nil || !st.Local {
		c.JSON(http.StatusNotFound, gin.H{"error": "Status not found"})
		return nil, false
	}
	return st, true
}

// handleStatusObject serves one local status as an ActivityPub object.
// Non-public statuses are not served; their audience got them pushed.
func (s *Server) handleStatusObject(c *gin.Context) {
	st, ok := s.statusByIdParam(c)
	if !ok {
		return
	}
	if !st.IsPublic() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Status not found"})
		return
	}

	obj := federation.StatusObject(st)
	body, err := json.Marshal(obj)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, activityJSON, body)
}

// handleOutbox serves the public outbox collection size for a local
// user. Items are not paged out; peers fetch statuses individually.
func (s *Server) handleOutbox(c *gin.Context) {
	actor, err := s.store.LocalActorByUsername(c.Param("username"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}

	s.renderCollection(c, actor.OutboxURI, 0)
}
