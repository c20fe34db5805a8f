// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/docchat/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is the backend used when none is configured.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultRequestsPerSecond paces requests from one client.
	DefaultRequestsPerSecond = 10

	// DefaultBurst is the number of requests allowed at once.
	DefaultBurst = 20

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// RequestIDHeader carries a unique ID for every request.
	RequestIDHeader = "X-Request-ID"

	userAgent = "docchat/0.1.0"
)

// TokenSource returns the bearer credential for the next request. It is
// called before every request; the client never caches the result.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Client is a client for the document-assistant backend. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	tokens  TokenSource
	limiter *rate.Limiter
	logger  *slog.Logger

	httpClient *http.Client
	// streamClient has no timeout; streams are bounded by their context.
	streamClient *http.Client
}

// NewClient creates a backend client.
func NewClient(opts Options, tokens TokenSource) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	// PERFORMANCE: Connection pooling shared by both clients.
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		tokens:       tokens,
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		logger:       opts.Logger.With("component", "api"),
		httpClient:   &http.Client{Transport: transport, Timeout: opts.Timeout},
		streamClient: &http.Client{Transport: transport},
	}
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// newRequest builds an authenticated request. The token source is called
// here, once per request.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	op := method + " " + path

	token, err := c.tokens(ctx)
	if err == nil && token == "" {
		err = ErrNoToken
	}
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// do paces, sends and logs a request. Non-2xx responses are converted to
// typed errors and their bodies closed.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	op := req.Method + " " + req.URL.Path

	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	// Don't log headers (may contain auth) or body (may contain sensitive data).
	requestID := req.Header.Get(RequestIDHeader)
	c.logger.Debug("api request", "op", op, "request_id", requestID)

	start := time.Now()
	resp, err := hc.Do(req)

	// SECURITY: Clear Authorization header immediately after request to prevent logging
	req.Header.Del("Authorization")

	if err != nil {
		c.logger.Warn("api request failed", "op", op, "request_id", requestID, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	c.logger.Debug("api response", "op", op, "request_id", requestID,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		return nil, handleErrorResponse(op, resp.StatusCode, body)
	}
	return resp, nil
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// doJSON performs a request with an optional JSON body and decodes the
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", method+" "+path, err)
	}
	return nil
}

func chatPath(chatID int64, suffix string) string {
	return "/chats/" + strconv.FormatInt(chatID, 10) + suffix
}

// fileIDsRequest is the body of attachment requests.
type fileIDsRequest struct {
	FileIDs []int64 `json:"file_ids"`
}

// =============================================================================
// CHATS
// =============================================================================

// ListChats returns the user's chats in backend order.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := c.doJSON(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat creates a chat with the given title.
func (c *Client) CreateChat(ctx context.Context, title string) (model.Chat, error) {
	var chat model.Chat
	err := c.doJSON(ctx, http.MethodPost, "/chats", map[string]string{"title": title}, &chat)
	return chat, err
}

// UpdateChatTitle renames a chat.
func (c *Client) UpdateChatTitle(ctx context.Context, chatID int64, title string) (model.Chat, error) {
	var chat model.Chat
	err := c.doJSON(ctx, http.MethodPut, chatPath(chatID, "/title"), map[string]string{"title": title}, &chat)
	return chat, err
}

// =============================================================================
// MESSAGES
// =============================================================================

// ListMessages returns a chat's messages in order.
func (c *Client) ListMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	var msgs []model.Message
	if err := c.doJSON(ctx, http.MethodGet, chatPath(chatID, "/messages"), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// sendMessageRequest is the body of a send.
type sendMessageRequest struct {
	Content string  `json:"content"`
	FileIDs []int64 `json:"file_ids"`
}

// SendMessage posts a user message and returns the streaming reply body.
// The caller must close it. The stream is bounded only by ctx.
func (c *Client) SendMessage(ctx context.Context, chatID int64, content string, fileIDs []int64) (io.ReadCloser, error) {
	if fileIDs == nil {
		fileIDs = []int64{}
	}
	data, err := json.Marshal(sendMessageRequest{Content: content, FileIDs: fileIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	path := chatPath(chatID, "/messages")
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(c.streamClient, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// ListChatFiles returns the files attached to a chat.
func (c *Client) ListChatFiles(ctx context.Context, chatID int64) ([]model.File, error) {
	var files []model.File
	if err := c.doJSON(ctx, http.MethodGet, chatPath(chatID, "/files"), nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// AttachFiles associates files with a chat.
func (c *Client) AttachFiles(ctx context.Context, chatID int64, fileIDs []int64) error {
	return c.doJSON(ctx, http.MethodPost, chatPath(chatID, "/files"), fileIDsRequest{FileIDs: fileIDs}, nil)
}

// DetachFile removes a file from a chat. The file stays in the library.
func (c *Client) DetachFile(ctx context.Context, chatID, fileID int64) error {
	path := chatPath(chatID, "/files/"+strconv.FormatInt(fileID, 10))
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// AttachToLatestChat associates files with the user's most recent chat
// and returns that chat.
func (c *Client) AttachToLatestChat(ctx context.Context, fileIDs []int64) (model.Chat, error) {
	var chat model.Chat
	err := c.doJSON(ctx, http.MethodPost, "/chats/latest/files", fileIDsRequest{FileIDs: fileIDs}, &chat)
	return chat, err
}

// =============================================================================
// FILE LIBRARY
// =============================================================================

// ListFiles returns the user's file library.
func (c *Client) ListFiles(ctx context.Context) ([]model.File, error) {
	var files []model.File
	if err := c.doJSON(ctx, http.MethodGet, "/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// UploadFile uploads r as a multipart "file" field named name.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (model.File, error) {
	if name == "" {
		return model.File{}, errors.New("upload: file name is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return model.File{}, fmt.Errorf("upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.File{}, fmt.Errorf("upload: read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return model.File{}, fmt.Errorf("upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files/upload", &buf, mw.FormDataContentType())
	if err != nil {
		return model.File{}, err
	}

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return model.File{}, err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return model.File{}, &TransportError{Op: "POST /files/upload", Err: err}
	}
	var f model.File
	if err := json.Unmarshal(data, &f); err != nil {
		return model.File{}, fmt.Errorf("upload: failed to parse response: %w", err)
	}
	return f, nil
}

// FileURL returns a time-limited download URL for a file.
func (c *Client) FileURL(ctx context.Context, fileID int64) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	path := "/files/" + strconv.FormatInt(fileID, 10) + "/url"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}
