// Package heygen implements core.SessionClient on top of the HeyGen
// streaming avatar API: REST for session control, a LiveKit room for media
// and a websocket for the voice channel.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dkeye/Avatar/internal/domain"
)

const (
	DefaultAPIBase = "https://api.heygen.com"

	pathNew   = "/v1/streaming.new"
	pathStart = "/v1/streaming.start"
	pathTask  = "/v1/streaming.task"
	pathStop  = "/v1/streaming.stop"

	maxBody = 1 << 20
)

// APIError is a non-success answer from the REST API.
type APIError struct {
	Status  int
	Code    int64
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("heygen %s: %d: %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("heygen %s: status %d", e.Path, e.Status)
}

type api struct {
	base  string
	token domain.Token
	http  *http.Client
}

type newSessionRequest struct {
	domain.StartConfig
	Version       string `json:"version"`
	VideoEncoding string `json:"video_encoding"`
}

type sessionData struct {
	SessionID   string
	URL         string
	AccessToken string
}

type taskRequest struct {
	SessionID string          `json:"session_id"`
	Text      string          `json:"text"`
	TaskType  domain.TaskType `json:"task_type"`
	TaskMode  domain.TaskMode `json:"task_mode"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (a *api) newSession(ctx context.Context, cfg domain.StartConfig) (sessionData, error) {
	body, err := a.post(ctx, pathNew, newSessionRequest{
		StartConfig:   cfg,
		Version:       "v2",
		VideoEncoding: "H264",
	})
	if err != nil {
		return sessionData{}, err
	}
	data := gjson.GetBytes(body, "data")
	sd := sessionData{
		SessionID:   data.Get("session_id").String(),
		URL:         data.Get("url").String(),
		AccessToken: data.Get("access_token").String(),
	}
	if sd.SessionID == "" || sd.URL == "" || sd.AccessToken == "" {
		return sessionData{}, &APIError{Status: http.StatusOK, Path: pathNew, Message: "incomplete session data"}
	}
	return sd, nil
}

func (a *api) startSession(ctx context.Context, sessionID string) error {
	_, err := a.post(ctx, pathStart, sessionRequest{SessionID: sessionID})
	return err
}

func (a *api) task(ctx context.Context, sessionID string, req domain.SpeakRequest) error {
	_, err := a.post(ctx, pathTask, taskRequest{
		SessionID: sessionID,
		Text:      req.Text,
		TaskType:  req.TaskType,
		TaskMode:  req.TaskMode,
	})
	return err
}

func (a *api) stopSession(ctx context.Context, sessionID string) error {
	_, err := a.post(ctx, pathStop, sessionRequest{SessionID: sessionID})
	return err
}

func (a *api) post(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("heygen %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.base, "/")+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("heygen %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token.Value())

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("heygen %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("heygen %s: read: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Code:    gjson.GetBytes(body, "code").Int(),
			Message: gjson.GetBytes(body, "message").String(),
			Path:    path,
		}
	}
	return body, nil
}
