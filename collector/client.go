package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/itskum47/monforge/monapi/collect"
)

// Client reads collect definitions from monapi.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL: cfg.ServerURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type collectsResponse struct {
	Dat []*collect.Collect `json:"dat"`
	Err string             `json:"err"`
}

// Collects returns the collects attached to node nid.
func (c *Client) Collects(ctx context.Context, nid int64) ([]*collect.Collect, error) {
	u := c.baseURL + "/api/collects?" + url.Values{"nid": {strconv.FormatInt(nid, 10)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collects request failed: %w", err)
	}
	defer resp.Body.Close()

	var body collectsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("collects failed with status code %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.Err != "" {
		return nil, fmt.Errorf("collects failed with status code %d: %s", resp.StatusCode, body.Err)
	}
	return body.Dat, nil
}
