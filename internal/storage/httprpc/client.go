// Package httprpc implements storage.Remote against the JSON HTTP API
// served by internal/server. Writes are synchronous requests — by the time
// a call returns without error the backend has committed it, so this
// adapter never reports pending writes. Subscriptions poll the group with
// a since cursor; the server answers 204 while nothing changed.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/storage"
)

// Ensure Client implements storage.Remote
var _ storage.Remote = (*Client)(nil)

const defaultPollInterval = 3 * time.Second

// Client is a storage.Remote over HTTP.
type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, pollInterval time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Client{
		baseURL:      baseURL,
		http:         &http.Client{},
		pollInterval: pollInterval,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// do runs one API call and decodes the envelope's data into out (if any).
// A nil error with ok=false means 404/204 — absence, not failure.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (ok bool, err error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusConflict:
		return false, models.ErrNameTaken
	case resp.StatusCode >= 400:
		var env envelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr == nil && env.Message != "" {
			return false, fmt.Errorf("backend rejected %s %s: %s", method, path, env.Message)
		}
		return false, fmt.Errorf("backend rejected %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return true, nil
}

// CreateGroup creates a group on the backend.
func (c *Client) CreateGroup(ctx context.Context, name string, creator models.Member, customID string) (*models.Group, error) {
	req := struct {
		Name     string        `json:"name"`
		Creator  models.Member `json:"creator"`
		CustomID string        `json:"customId,omitempty"`
	}{Name: name, Creator: creator, CustomID: customID}

	var g models.Group
	if _, err := c.do(ctx, http.MethodPost, "/api/groups", req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroup fetches a group, returning (nil, nil) when it does not exist.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var g models.Group
	ok, err := c.do(ctx, http.MethodGet, "/api/groups/"+groupID, nil, &g)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// SubscribeToGroup polls the group until unsubscribed. Poll failures are
// silent: the next tick retries, matching a flaky network rather than
// tearing the listener down.
func (c *Client) SubscribeToGroup(groupID string, onUpdate func(*models.Group)) (func(), error) {
	stop := make(chan struct{})

	go func() {
		var since int64
		poll := func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.pollInterval)
			defer cancel()

			var g models.Group
			path := "/api/groups/" + groupID
			if since > 0 {
				path += "?since=" + strconv.FormatInt(since, 10)
			}
			ok, err := c.do(ctx, http.MethodGet, path, nil, &g)
			if err != nil || !ok {
				return
			}
			since = g.UpdatedAt
			onUpdate(&g)
		}

		poll()
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
	}, nil
}

// AddExpense appends an expense.
func (c *Client) AddExpense(ctx context.Context, groupID string, e models.Expense) error {
	return c.write(ctx, http.MethodPost, "/api/groups/"+groupID+"/expenses", e)
}

// AddMember appends a member; a 409 surfaces as models.ErrNameTaken.
func (c *Client) AddMember(ctx context.Context, groupID string, m models.Member) error {
	return c.write(ctx, http.MethodPost, "/api/groups/"+groupID+"/members", m)
}

// RemoveMember drops a member, the expenses they paid, and their
// participation in surviving splits.
func (c *Client) RemoveMember(ctx context.Context, groupID, memberID string) error {
	return c.write(ctx, http.MethodDelete, "/api/groups/"+groupID+"/members/"+memberID, nil)
}

// UpdateMemberStatus flips a member between pending and active.
func (c *Client) UpdateMemberStatus(ctx context.Context, groupID, memberID string, status models.MemberStatus) error {
	body := struct {
		Status models.MemberStatus `json:"status"`
	}{Status: status}
	return c.write(ctx, http.MethodPatch, "/api/groups/"+groupID+"/members/"+memberID, body)
}

// MergeMember folds oldID into newID on the backend.
func (c *Client) MergeMember(ctx context.Context, groupID, oldID, newID string) error {
	body := struct {
		OldID string `json:"oldId"`
		NewID string `json:"newId"`
	}{OldID: oldID, NewID: newID}
	return c.write(ctx, http.MethodPost, "/api/groups/"+groupID+"/merge", body)
}

// DeleteExpense removes one expense.
func (c *Client) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	return c.write(ctx, http.MethodDelete, "/api/groups/"+groupID+"/expenses/"+expenseID, nil)
}

// DeleteGroup destroys the group.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.write(ctx, http.MethodDelete, "/api/groups/"+groupID, nil)
}

// UpdateGroup applies a partial scalar update.
func (c *Client) UpdateGroup(ctx context.Context, groupID string, update models.GroupUpdate) error {
	return c.write(ctx, http.MethodPatch, "/api/groups/"+groupID, update)
}

// UploadImage stores a blob on the backend and returns its URL resolved
// against the backend base URL.
func (c *Client) UploadImage(ctx context.Context, dataURI, path string) (string, error) {
	body := struct {
		Path string `json:"path"`
		Data string `json:"data"`
	}{Path: path, Data: dataURI}

	var resp struct {
		URL string `json:"url"`
	}
	ok, err := c.do(ctx, http.MethodPost, "/api/images", body, &resp)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("image upload rejected")
	}
	return c.baseURL + resp.URL, nil
}

// GroupMetadata reports sync metadata, (nil, nil) for an unknown group.
func (c *Client) GroupMetadata(ctx context.Context, groupID string) (*storage.Metadata, error) {
	var md storage.Metadata
	ok, err := c.do(ctx, http.MethodGet, "/api/groups/"+groupID+"/metadata", nil, &md)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &md, nil
}

// write runs a mutating call whose absence case is an error, not a miss.
func (c *Client) write(ctx context.Context, method, path string, body any) error {
	ok, err := c.do(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}
	return nil
}
