package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ombekk/dugong/util"
)

// WebfingerResponse is the discovery document mapping a handle to its
// canonical actor URL.
type WebfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []WebfingerLink `json:"links"`
}

// WebfingerLink is one entry of the links array; rel=self carries the
// actor document URL.
type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

// SelfLink returns the href of the rel=self link, if any.
func (w WebfingerResponse) SelfLink() (string, bool) {
	for _, link := range w.Links {
		if link.Rel == "self" && link.Href != "" {
			return link.Href, true
		}
	}
	return "", false
}

// ResolveHandle discovers the canonical actor document URL for a
// user@host handle via WebFinger.
func (d *Directory) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(handle, "@")
	parts := strings.SplitN(handle, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid handle: %s", handle)
	}
	host := parts[1]

	endpoint := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s",
		host, url.QueryEscape("acct:"+handle))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webfinger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("webfinger failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var wf WebfingerResponse
	if err := json.Unmarshal(body, &wf); err != nil {
		return "", fmt.Errorf("failed to parse webfinger JSON: %w", err)
	}

	href, ok := wf.SelfLink()
	if !ok {
		return "", fmt.Errorf("webfinger for %s: no self link", handle)
	}
	return href, nil
}
