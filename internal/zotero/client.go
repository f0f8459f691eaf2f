// Package zotero is a minimal client for the reference-manager web
// API: enough to attach an insight note to a library item.
package zotero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userID     string
}

func NewClient(baseURL, apiKey, userID string) *Client {
	if baseURL == "" {
		baseURL = "https://api.zotero.org"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userID:     userID,
	}
}

type noteItem struct {
	ItemType   string `json:"itemType"`
	ParentItem string `json:"parentItem,omitempty"`
	Note       string `json:"note"`
	Tags       []tag  `json:"tags,omitempty"`
}

type tag struct {
	Tag string `json:"tag"`
}

// CreateNote attaches an HTML note to the item with the given key.
func (c *Client) CreateNote(ctx context.Context, itemKey, html string, tags []string) error {
	if c.apiKey == "" || c.userID == "" {
		return fmt.Errorf("zotero client is not configured")
	}

	item := noteItem{
		ItemType:   "note",
		ParentItem: itemKey,
		Note:       html,
	}
	for _, t := range tags {
		item.Tags = append(item.Tags, tag{Tag: t})
	}

	payload, err := json.Marshal([]noteItem{item})
	if err != nil {
		return fmt.Errorf("marshal note failed: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s/items", c.baseURL, c.userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build note request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Zotero-API-Key", c.apiKey)
	req.Header.Set("Zotero-API-Version", "3")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("note request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("note response status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}
