// Package backend is the REST client for the report and chat backend and the
// mesh inference uploader.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/AltairaLabs/barre/pkg/errors"
	"github.com/AltairaLabs/barre/pkg/httputil"
	"github.com/AltairaLabs/barre/runtime/auth"
	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/types"
)

// Errors returned by Client.
var (
	ErrNotFound  = errors.New("backend: not found")
	ErrInvalidID = errors.New("backend: invalid id")
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// maxUploadResponse bounds the overlay image returned by the mesh service.
const maxUploadResponse = 32 << 20

// Profile is the signed-in user as reported by the backend.
type Profile struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// SessionAnalytics is the best-effort analytics record sent after a save.
type SessionAnalytics struct {
	SessionID      string `json:"sessionId"`
	Duration       string `json:"duration"`
	ExerciseCount  int    `json:"exerciseCount"`
	FeedbackPoints int    `json:"feedbackPoints"`
	OverallScore   *int   `json:"overallScore,omitempty"`
}

// Overlay is an image returned by the mesh inference service.
type Overlay struct {
	Data     []byte
	MIMEType string
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	MeshURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the backend REST API. Every backend call carries the
// bearer credential; mesh uploads are unauthenticated.
type Client struct {
	baseURL string
	meshURL string
	http    *http.Client
	cred    auth.Credential
}

// NewClient creates a backend client authenticating with cred.
func NewClient(cfg Config, cred auth.Credential) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = httputil.DefaultBackendTimeout
		}
		client = httputil.NewTracedHTTPClient(timeout, "backend")
	}
	if cred == nil {
		cred = &auth.NoOpCredential{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		meshURL: strings.TrimRight(cfg.MeshURL, "/"),
		http:    client,
		cred:    cred,
	}
}

// CreateReport persists a finalized session report (POST /ai-reports) and
// returns the stored record with its server-assigned id.
func (c *Client) CreateReport(ctx context.Context, report types.Report) (types.Report, error) {
	var saved types.Report
	err := c.do(ctx, "CreateReport", http.MethodPost, "/ai-reports", report, &saved)
	return saved, err
}

// ListReports returns the persisted reports of userID (GET /ai-reports/user/{id}).
func (c *Client) ListReports(ctx context.Context, userID string) ([]types.Report, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	var reports []types.Report
	err := c.do(ctx, "ListReports", http.MethodGet, "/ai-reports/user/"+url.PathEscape(userID), nil, &reports)
	return reports, err
}

// DeleteReport removes a persisted report (DELETE /ai-reports/{id}).
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return c.do(ctx, "DeleteReport", http.MethodDelete, "/ai-reports/"+url.PathEscape(id), nil, nil)
}

// Profile returns the signed-in user (GET /auth/profile).
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.do(ctx, "Profile", http.MethodGet, "/auth/profile", nil, &p)
	return p, err
}

// CreateChatSession starts a chat session that feedback can be mirrored into.
func (c *Client) CreateChatSession(ctx context.Context, title string) (types.ChatSession, error) {
	var s types.ChatSession
	err := c.do(ctx, "CreateChatSession", http.MethodPost, "/chat/sessions", map[string]string{"title": title}, &s)
	return s, err
}

// AppendChatMessage appends msg to a chat session
// (POST /chat/sessions/{id}/messages) and returns the stored message.
func (c *Client) AppendChatMessage(ctx context.Context, sessionID string, msg types.ChatMessage) (types.ChatMessage, error) {
	if err := validateID(sessionID); err != nil {
		return types.ChatMessage{}, err
	}
	var stored types.ChatMessage
	err := c.do(ctx, "AppendChatMessage", http.MethodPost,
		"/chat/sessions/"+url.PathEscape(sessionID)+"/messages", msg, &stored)
	return stored, err
}

// RecordAnalytics posts session analytics (POST /analytics/session).
func (c *Client) RecordAnalytics(ctx context.Context, a SessionAnalytics) error {
	return c.do(ctx, "RecordAnalytics", http.MethodPost, "/analytics/session", a, nil)
}

// UploadFrame posts f as multipart field "image" to the mesh inference
// endpoint and returns the overlay image it responds with.
func (c *Client) UploadFrame(ctx context.Context, f types.Frame) (Overlay, error) {
	const op = "UploadFrame"
	if c.meshURL == "" {
		return Overlay{}, pkgerrors.New(pkgerrors.ComponentBackend, op, errors.New("mesh URL is not configured"))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return Overlay{}, pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return Overlay{}, pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}
	if err := mw.Close(); err != nil {
		return Overlay{}, pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.meshURL+"/upload-frame", &body)
	if err != nil {
		return Overlay{}, pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Overlay{}, pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp, op); err != nil {
		return Overlay{}, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadResponse))
	if err != nil {
		return Overlay{}, pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return Overlay{Data: data, MIMEType: mime}, nil
}

// do sends an authenticated JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return pkgerrors.New(pkgerrors.ComponentBackend, op, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := c.cred.Apply(ctx, req); err != nil {
		return pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}

	logger.APIRequest("backend", method, req.URL.String(), map[string]string{
		"Authorization": req.Header.Get("Authorization"),
	}, json.RawMessage(payload))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.APIResponse("backend", 0, "", err)
		return pkgerrors.New(pkgerrors.ComponentBackend, op, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, op); err != nil {
		logger.APIResponse("backend", resp.StatusCode, "", err)
		return err
	}
	logger.Debug("Backend call completed", "operation", op, "status", resp.StatusCode, "latency", time.Since(start))

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.New(pkgerrors.ComponentBackend, op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// checkResponse converts a non-2xx response into a ContextualError carrying
// the status and the server's message. 404 wraps ErrNotFound.
func checkResponse(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) // NOSONAR: read error leaves body empty

	cause := fmt.Errorf("request failed with status %d", resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		cause = fmt.Errorf("%w: %s", ErrNotFound, resp.Request.URL.Path)
	}
	err := pkgerrors.New(pkgerrors.ComponentBackend, op, cause).WithStatusCode(resp.StatusCode)
	if msg := serverMessage(body); msg != "" {
		err = err.WithServerMessage(msg)
	}
	return err
}

// serverMessage extracts {"message": ...} or {"error": ...} from an error body.
func serverMessage(body []byte) string {
	var envelope struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return strings.TrimSpace(string(body))
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	var s string
	if json.Unmarshal(envelope.Error, &s) == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(envelope.Error, &nested) == nil {
		return nested.Message
	}
	return ""
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "/?#") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
