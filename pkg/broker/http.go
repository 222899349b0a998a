package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/types"
)

// HTTPClient implements Client against the broker's JSON API.
type HTTPClient struct {
	endpoint string
	apiToken string
	attempts uint
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPClient creates a broker client. Transient failures (network
// errors and 5xx responses) are retried with backoff up to attempts.
func NewHTTPClient(endpoint, apiToken string, timeout time.Duration, attempts uint) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if attempts == 0 {
		attempts = 3
	}
	return &HTTPClient{
		endpoint: endpoint,
		apiToken: apiToken,
		attempts: attempts,
		client:   &http.Client{Timeout: timeout},
		logger:   log.WithComponent("broker"),
	}
}

// statusError distinguishes HTTP status failures from transport errors
// so 4xx responses are not retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("broker returned status %d: %s", e.code, e.body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode broker request: %w", err)
		}
	}

	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiToken)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &statusError{code: resp.StatusCode, body: string(data)}
		}
		if resp.StatusCode >= 400 {
			return retry.Unrecoverable(&statusError{code: resp.StatusCode, body: string(data)})
		}
		if respBody != nil {
			if err := json.Unmarshal(data, respBody); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode broker response: %w", err))
			}
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn().Err(err).Uint("attempt", n+1).
				Str("method", method).Str("path", path).
				Msg("Retrying broker call")
		}))
}

func (c *HTTPClient) CreateSession(ctx context.Context, session *types.Session) (string, error) {
	if session.Server == nil {
		return "", fmt.Errorf("session %s has no server", session.SessionID)
	}
	req := map[string]any{
		"name":               session.Name,
		"owner":              session.Owner,
		"server_instance_id": session.Server.InstanceID,
	}
	var resp struct {
		BrokerSessionID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &resp); err != nil {
		return "", err
	}
	return resp.BrokerSessionID, nil
}

func (c *HTTPClient) ResumeSession(ctx context.Context, session *types.Session) error {
	if session.BrokerSessionID == "" {
		return fmt.Errorf("session %s has no broker session id", session.SessionID)
	}
	return c.do(ctx, http.MethodPost, "/sessions/"+session.BrokerSessionID+"/resume", nil, nil)
}

func (c *HTTPClient) DescribeSessions(ctx context.Context, brokerSessionIDs []string) (map[string]*SessionDescription, error) {
	req := map[string]any{"session_ids": brokerSessionIDs}
	var resp struct {
		Sessions []*SessionDescription `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodPost, "/describeSessions", req, &resp); err != nil {
		return nil, err
	}
	result := make(map[string]*SessionDescription, len(resp.Sessions))
	for _, desc := range resp.Sessions {
		result[desc.BrokerSessionID] = desc
	}
	return result, nil
}

func (c *HTTPClient) DeleteSessions(ctx context.Context, brokerSessionIDs []string, force bool) error {
	req := map[string]any{
		"session_ids": brokerSessionIDs,
		"force":       force,
	}
	return c.do(ctx, http.MethodPost, "/deleteSessions", req, nil)
}

func (c *HTTPClient) GetSessionConnectionData(ctx context.Context, brokerSessionID string) (*ConnectionData, error) {
	var resp ConnectionData
	if err := c.do(ctx, http.MethodGet, "/sessions/"+brokerSessionID+"/connectionData", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetActiveCounts(ctx context.Context) (map[string]int, error) {
	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions/activeCounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

func (c *HTTPClient) EnforceSessionPermissions(ctx context.Context, brokerSessionID string, permissions []ActorPermission) error {
	req := map[string]any{
		"session_id":  brokerSessionID,
		"permissions": permissions,
	}
	return c.do(ctx, http.MethodPost, "/sessions/"+brokerSessionID+"/permissions", req, nil)
}

func (c *HTTPClient) GetSessionScreenshots(ctx context.Context, brokerSessionIDs []string) ([]*Screenshot, error) {
	req := map[string]any{"session_ids": brokerSessionIDs}
	var resp struct {
		Screenshots []*Screenshot `json:"screenshots"`
	}
	if err := c.do(ctx, http.MethodPost, "/getSessionScreenshots", req, &resp); err != nil {
		return nil, err
	}
	return resp.Screenshots, nil
}
