package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ombekk/dugong/federation"
	"github.com/ombekk/dugong/util"
)

const activityJSON = "application/activity+json; charset=utf-8"

// handleWebfinger answers acct: lookups for local users.
func (s *Server) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	if !strings.HasPrefix(resource, "acct:") {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}

	handle := strings.TrimPrefix(resource, "acct:")
	handle = strings.TrimSuffix(handle, fmt.Sprintf("@%s", s.conf.Conf.SslDomain))

	actor, err := s.store.LocalActorByUsername(handle)
	if err != nil || actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}

	c.JSON(http.StatusOK, federation.WebfingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", actor.Username, s.conf.Conf.SslDomain),
		Links: []federation.WebfingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actor.URI,
			},
		},
	})
}

// handleActor serves the ActivityPub actor document of a local user.
func (s *Server) handleActor(c *gin.Context) {
	actor, err := s.store.LocalActorByUsername(c.Param("username"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}

	doc := federation.ActorResponse{
		Context: []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		ID:                actor.URI,
		Type:              "Person",
		PreferredUsername: actor.Username,
		Name:              actor.DisplayName,
		Summary:           actor.Summary,
		Inbox:             actor.InboxURI,
		Outbox:            actor.OutboxURI,
		Followers:         actor.FollowersURI,
	}
	doc.Endpoints.SharedInbox = actor.SharedInboxURI
	doc.PublicKey.ID = actor.URI + "#main-key"
	doc.PublicKey.Owner = actor.URI
	doc.PublicKey.PublicKeyPem = actor.PublicKeyPem
	if actor.AvatarURL != "" {
		doc.Icon.Type = "Image"
		doc.Icon.MediaType = "image/png"
		doc.Icon.URL = actor.AvatarURL
	}

	body, err := json.Marshal(doc)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, activityJSON, body)
}

// handleFollowers serves the followers collection with its size; the
// member list stays private.
func (s *Server) handleFollowers(c *gin.Context) {
	actor, err := s.store.LocalActorByUsername(c.Param("username"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}

	followers, err := s.store.AcceptedFollowerActors(actor.URI)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	s.renderCollection(c, actor.FollowersURI, len(followers))
}

func (s *Server) handleFollowing(c *gin.Context) {
	actor, err := s.store.LocalActorByUsername(c.Param("username"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}

	s.renderCollection(c, actor.URI+"/following", 0)
}

func (s *Server) renderCollection(c *gin.Context, id string, total int) {
	body, err := json.Marshal(gin.H{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         id,
		"type":       "OrderedCollection",
		"totalItems": total,
	})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, activityJSON, body)
}

// handleNodeinfoIndex points crawlers at the nodeinfo document.
func (s *Server) handleNodeinfoIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"links": []gin.H{
			{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.0", s.conf.Conf.SslDomain),
			},
		},
	})
}

func (s *Server) handleNodeinfo(c *gin.Context) {
	locals, err := s.store.LocalActors()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"version": "2.0",
		"software": gin.H{
			"name":    "dugong",
			"version": util.GetVersion(),
		},
		"protocols": []string{"activitypub"},
		"usage": gin.H{
			"users": gin.H{"total": len(locals)},
		},
		"openRegistrations": !s.conf.Conf.Closed,
	})
}
