package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// client is the thin HTTP wrapper every subcommand shares, equivalent in
// spirit to rivinec's client.CommandLineClient but scoped to this daemon's
// own REST surface instead of a generic blockchain RPC client.
type client struct {
	addr   string
	apiKey string
	http   http.Client
}

func (c *client) get(path string, query url.Values) (map[string]interface{}, error) {
	return c.do(http.MethodGet, path, query, nil)
}

func (c *client) post(path string, body interface{}) (map[string]interface{}, error) {
	return c.do(http.MethodPost, path, nil, body)
}

func (c *client) do(method, path string, query url.Values, body interface{}) (map[string]interface{}, error) {
	if c.http.Timeout == 0 {
		c.http.Timeout = 15 * time.Second
	}
	u := strings.TrimRight(c.addr, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = strings.NewReader(string(b))
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Oracle-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("oracled returned %d: %v", resp.StatusCode, out)
	}
	return out, nil
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(b))
}
