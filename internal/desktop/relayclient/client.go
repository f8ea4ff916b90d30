// Package relayclient is the desktop agent's HTTP client for the relay:
// entity mutations, collection pulls, and the pairing lifecycle.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

const requestTimeout = 15 * time.Second

// Client talks to the relay's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client for the relay at baseURL. apiKey authenticates the
// entity and bot routes.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// PairResult is the outcome of redeeming a pairing code or recovering a
// session.
type PairResult struct {
	SessionToken string    `json:"sessionToken"`
	DeviceID     string    `json:"deviceId"`
	UserID       string    `json:"userId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// PushMutation delivers one sync-queue entry to the relay. The action maps
// to the HTTP method: create POSTs the payload, update PATCHes it, delete
// issues a DELETE by id.
func (c *Client) PushMutation(ctx context.Context, e *models.SyncQueueEntry) error {
	base := fmt.Sprintf("%s/api/v1/%ss", c.baseURL, e.EntityType)

	var (
		method string
		url    string
		body   io.Reader
	)
	switch e.Action {
	case models.ActionCreate:
		method, url, body = http.MethodPost, base, bytes.NewReader(e.Payload)
	case models.ActionUpdate:
		method, url, body = http.MethodPatch, base+"/"+e.EntityID, bytes.NewReader(e.Payload)
	case models.ActionDelete:
		method, url = http.MethodDelete, base+"/"+e.EntityID
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set(common.APIKeyHeaderName, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	defer resp.Body.Close()

	// A delete for an already-gone entity is settled, not an error.
	if e.Action == models.ActionDelete && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push failed: relay returned %d", resp.StatusCode)
	}
	return nil
}

// FetchCollection pulls the full server-side collection for an entity type.
func (c *Client) FetchCollection(ctx context.Context, entityType string) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/v1/%ss", c.baseURL, entityType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(common.APIKeyHeaderName, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: relay returned %d", resp.StatusCode)
	}

	var result struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return result.Data, nil
}

// VerifyCode redeems a pairing code for a session token.
func (c *Client) VerifyCode(ctx context.Context, code string) (*PairResult, error) {
	var result PairResult
	if err := c.postJSON(ctx, "/pair/verify", map[string]string{"code": code}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterDevice announces this device under the session.
func (c *Client) RegisterDevice(ctx context.Context, token, deviceID, name string) error {
	req := map[string]string{"deviceId": deviceID, "name": name}
	return c.postJSONAuth(ctx, "/pair/devices", token, req, nil)
}

// RecoverSession requests a fresh session token for a previously registered
// device. Returns common.ErrDeviceNotRegistered when the relay does not
// recognize the device.
func (c *Client) RecoverSession(ctx context.Context, deviceID, userID string) (*PairResult, error) {
	req := map[string]string{"deviceId": deviceID, "userId": userID}

	var result PairResult
	err := c.postJSON(ctx, "/pair/recover", req, &result)
	if err != nil {
		if se, ok := err.(*statusError); ok && se.status == http.StatusNotFound {
			return nil, common.ErrDeviceNotRegistered
		}
		return nil, err
	}
	return &result, nil
}

// Unpair revokes the session on the relay.
func (c *Client) Unpair(ctx context.Context, token string) error {
	return c.postJSON(ctx, "/pair/unpair", map[string]string{"sessionToken": token}, nil)
}

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.status, e.message)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.postJSONAuth(ctx, path, "", in, out)
}

func (c *Client) postJSONAuth(ctx context.Context, path, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(common.SessionTokenHeaderName, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &statusError{status: resp.StatusCode, message: body.Error}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
