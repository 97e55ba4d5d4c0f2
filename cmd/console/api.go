package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/novel-engine/internal/handlers"
	"github.com/jwebster45206/novel-engine/internal/playthrough"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

// apiClient talks to the novel engine HTTP API.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(baseURL string, client *http.Client) *apiClient {
	return &apiClient{baseURL: baseURL, client: client}
}

func (a *apiClient) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (a *apiClient) createPlaythrough(ctx context.Context, projectID, userID string) (*state.Playthrough, error) {
	var pt state.Playthrough
	req := handlers.CreatePlaythroughRequest{ProjectID: projectID, UserID: userID}
	if err := a.do(ctx, http.MethodPost, "/v1/playthroughs", req, &pt, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("failed to create playthrough: %w", err)
	}
	return &pt, nil
}

func (a *apiClient) getPlaythrough(ctx context.Context, id uuid.UUID) (*state.Playthrough, error) {
	var pt state.Playthrough
	if err := a.do(ctx, http.MethodGet, "/v1/playthroughs/"+id.String(), nil, &pt, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to get playthrough: %w", err)
	}
	return &pt, nil
}

func (a *apiClient) turn(ctx context.Context, id uuid.UUID, text string) (*playthrough.TurnOutcome, error) {
	var out playthrough.TurnOutcome
	path := "/v1/playthroughs/" + id.String() + "/turns"
	if err := a.do(ctx, http.MethodPost, path, handlers.TurnRequest{Text: text}, &out, http.StatusOK); err != nil {
		return nil, fmt.Errorf("turn failed: %w", err)
	}
	return &out, nil
}

func (a *apiClient) hint(ctx context.Context, id uuid.UUID) (chat.DisplayLine, error) {
	var out handlers.HintResponse
	if err := a.do(ctx, http.MethodPost, "/v1/playthroughs/"+id.String()+"/hint", nil, &out, http.StatusOK); err != nil {
		return chat.DisplayLine{}, fmt.Errorf("hint failed: %w", err)
	}
	return out.Line, nil
}

func (a *apiClient) rewind(ctx context.Context, id uuid.UUID, idx int) (*state.Playthrough, error) {
	var pt state.Playthrough
	req := handlers.RewindRequest{LineIdx: &idx}
	if err := a.do(ctx, http.MethodPost, "/v1/playthroughs/"+id.String()+"/rewind", req, &pt, http.StatusOK); err != nil {
		return nil, fmt.Errorf("rewind failed: %w", err)
	}
	return &pt, nil
}

// fork posts to the branch or restart route; both answer with the new playthrough.
func (a *apiClient) fork(ctx context.Context, id uuid.UUID, action string) (*state.Playthrough, error) {
	var pt state.Playthrough
	if err := a.do(ctx, http.MethodPost, "/v1/playthroughs/"+id.String()+"/"+action, nil, &pt, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("%s failed: %w", action, err)
	}
	return &pt, nil
}

func (a *apiClient) staleness(ctx context.Context, id uuid.UUID) (playthrough.Staleness, error) {
	var s playthrough.Staleness
	if err := a.do(ctx, http.MethodGet, "/v1/playthroughs/"+id.String()+"/staleness", nil, &s, http.StatusOK); err != nil {
		return s, fmt.Errorf("staleness check failed: %w", err)
	}
	return s, nil
}

func (a *apiClient) do(ctx context.Context, method, path string, in, out any, want int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
		}
		return errors.New(errorResp.Error)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
