package chatlink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type historyResponse struct {
	ThreadID string    `json:"threadId"`
	Messages []Message `json:"messages"`
}

// FetchThreadHistory backfills a thread's log from the REST history
// endpoint. Each returned message is merged through the same dedup/append
// path live frames take, so a backfill racing a live socket can never
// duplicate or reorder entries. The merged thread state is returned.
func (c *Client) FetchThreadHistory(ctx context.Context, threadID string) (ThreadState, error) {
	if threadID == "" {
		return ThreadState{}, fmt.Errorf("threadID is required")
	}

	url := c.opts.BaseURL + "/api/threads/" + threadID + "/messages"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return ThreadState{}, fmt.Errorf("failed to create request: %w", err)
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return ThreadState{}, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ThreadState{}, fmt.Errorf("history HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ThreadState{}, fmt.Errorf("read history response: %w", err)
	}

	var hist historyResponse
	if err := json.Unmarshal(body, &hist); err != nil {
		return ThreadState{}, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	for _, msg := range hist.Messages {
		if msg.ID == "" {
			continue
		}
		c.cm.applyHistory(threadID, msg)
	}

	t, _ := c.cm.getThread(threadID)
	return t, nil
}
