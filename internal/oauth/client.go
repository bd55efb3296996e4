package oauth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/veilbreaker/sheetgate/internal/database/types"
)

// Client is the bot-side client for the consent server's initiate API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates an initiate API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Initiate requests a consent link for a Discord user.
func (c *Client) Initiate(ctx context.Context, discordUserID uint64, kind types.AuthKind) (string, error) {
	path := "/api/auth/initiate"
	if kind == types.AuthKindUser {
		path += "/user"
	}

	payload, err := sonic.Marshal(initiateRequest{
		DiscordUserID: strconv.FormatUint(discordUserID, 10),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal initiate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build initiate request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call consent server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("consent server returned status %d", resp.StatusCode)
	}

	var result initiateResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode initiate response: %w", err)
	}

	return result.URL, nil
}
