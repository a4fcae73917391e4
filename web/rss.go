package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/ombekk/dugong/domain"
)

// handleFeed serves the public local statuses as RSS.
func (s *Server) handleFeed(c *gin.Context) {
	statuses, err := s.store.PublicLocalStatuses(50)
	if err != nil {
		s.log.Error("Feed query failed", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	link := fmt.Sprintf("https://%s/feed", s.conf.Conf.SslDomain)
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Public posts on %s", s.conf.Conf.SslDomain),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("federated timeline of %s", s.conf.Conf.SslDomain),
		Created:     time.Now(),
	}

	for _, st := range statuses {
		if st.Kind == domain.KindBoost {
			continue
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      st.URI,
			Title:   fmt.Sprintf("Post by %s", st.ActorURI),
			Link:    &feeds.Link{Href: st.URI},
			Content: st.Content,
			Created: st.CreatedAt,
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		s.log.Error("Feed rendering failed", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
}
