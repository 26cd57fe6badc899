// Package adafri is the Go client for the Adafri workspace messaging API.
//
// It covers the REST API, the realtime socket, and client-side stores that keep
// workspace, channel, timeline and typing state consistent with a live connection.
//
// Example:
//
//	client := adafri.NewClient("", adafri.WithBaseURL("https://api.example.com"))
//	session := adafri.NewSession(client)
//	_ = session.Login(ctx, token)
//	defer session.Logout(ctx)
//
//	session.Workspaces.FetchWorkspaces(ctx)
//	session.Channels.FetchChannels(ctx, wsID)
//	session.Channels.SelectChannel(ctx, wsID, channelID)
//	session.Messages.FetchChannelMessages(ctx, wsID, channelID, 0)
//	msg, err := session.Messages.SendMessage(ctx, wsID, "hello")
package adafri

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:8080/api"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	mu         sync.RWMutex
	token      string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	Workspaces *WorkspacesClient
	Channels   *ChannelsClient
	Messages   *MessagesClient
	Uploads    *UploadsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a new API client. token may be empty until login.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Workspaces = &WorkspacesClient{c: c}
	c.Channels = &ChannelsClient{c: c}
	c.Messages = &MessagesClient{c: c}
	c.Uploads = &UploadsClient{c: c}
	return c
}

// SetToken replaces the bearer token used for REST calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) BaseURL() string { return c.baseURL }

// ============================================================================
// Internal request helpers
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query url.Values) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, bodyReader, query)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

// doMultipart sends fields plus files as multipart/form-data under fileField.
func (c *Client) doMultipart(ctx context.Context, method, path string, fields map[string]string, fileField string, files []Upload) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := w.CreatePart(fileHeader(fileField, f))
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write file data: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, method, path, &buf, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debug("api request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// decodeAPIError pulls the conventional {message} (or {error:{message}}) out of
// an error body.
func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Error   *struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message, apiErr.Code = body.Message, body.Code
		if apiErr.Message == "" && body.Error != nil {
			apiErr.Message, apiErr.Code = body.Error.Message, body.Error.Code
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// decodeJSON decodes a response body, unwrapping a {"data": ...} envelope when present.
func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if len(bytes.TrimSpace(data)) == 0 {
		return &result, nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(data, &env) == nil && len(env.Data) > 0 {
		data = env.Data
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func fileHeader(field string, f Upload) map[string][]string {
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = guessMimeType(f.FileName)
	}
	return map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.FileName)},
		"Content-Type":        {mimeType},
	}
}

// guessMimeType returns MIME type from file extension.
func guessMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	fallback := map[string]string{
		".md": "text/markdown", ".webp": "image/webp", ".webm": "video/webm",
	}
	if m, ok := fallback[ext]; ok {
		return m
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if idx := strings.Index(t, ";"); idx > 0 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	return "application/octet-stream"
}

func esc(s string) string { return url.PathEscape(s) }

// ============================================================================
// Workspaces
// ============================================================================

type WorkspacesClient struct{ c *Client }

func (w *WorkspacesClient) List(ctx context.Context) ([]Workspace, error) {
	data, err := w.c.doRequest(ctx, http.MethodGet, "/workspaces", nil, nil)
	if err != nil {
		return nil, err
	}
	out, err := decodeJSON[[]Workspace](data)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (w *WorkspacesClient) Create(ctx context.Context, opts *CreateWorkspaceOptions) (*Workspace, error) {
	data, err := w.c.doRequest(ctx, http.MethodPost, "/workspaces", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Workspace](data)
}

func (w *WorkspacesClient) Update(ctx context.Context, id string, opts *UpdateWorkspaceOptions) (*Workspace, error) {
	data, err := w.c.doRequest(ctx, http.MethodPut, "/workspaces/"+esc(id), opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Workspace](data)
}

func (w *WorkspacesClient) UpdateLogo(ctx context.Context, id string, logo Upload) (*Workspace, error) {
	if logo.FileName == "" {
		return nil, fmt.Errorf("logo file name is required")
	}
	data, err := w.c.doMultipart(ctx, http.MethodPut, "/workspaces/"+esc(id)+"/logo", nil, "logo", []Upload{logo})
	if err != nil {
		return nil, err
	}
	return decodeJSON[Workspace](data)
}

func (w *WorkspacesClient) Members(ctx context.Context, id string) ([]Member, error) {
	data, err := w.c.doRequest(ctx, http.MethodGet, "/workspaces/"+esc(id)+"/members", nil, nil)
	if err != nil {
		return nil, err
	}
	out, err := decodeJSON[[]Member](data)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (w *WorkspacesClient) UpdateMember(ctx context.Context, id, userID, role string) (*Member, error) {
	data, err := w.c.doRequest(ctx, http.MethodPut, "/workspaces/"+esc(id)+"/members/"+esc(userID), map[string]string{"role": role}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Member](data)
}

func (w *WorkspacesClient) RemoveMember(ctx context.Context, id, userID string) error {
	_, err := w.c.doRequest(ctx, http.MethodDelete, "/workspaces/"+esc(id)+"/members/"+esc(userID), nil, nil)
	return err
}

func (w *WorkspacesClient) Invite(ctx context.Context, id string, opts *InviteOptions) (*Invitation, error) {
	data, err := w.c.doRequest(ctx, http.MethodPost, "/workspaces/"+esc(id)+"/invitations", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Invitation](data)
}

func (w *WorkspacesClient) Invitations(ctx context.Context, id string) ([]Invitation, error) {
	data, err := w.c.doRequest(ctx, http.MethodGet, "/workspaces/"+esc(id)+"/invitations", nil, nil)
	if err != nil {
		return nil, err
	}
	out, err := decodeJSON[[]Invitation](data)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (w *WorkspacesClient) RevokeInvitation(ctx context.Context, id, invitationID string) error {
	_, err := w.c.doRequest(ctx, http.MethodDelete, "/workspaces/"+esc(id)+"/invitations/"+esc(invitationID), nil, nil)
	return err
}

// Join accepts an invitation token and returns the joined workspace.
func (w *WorkspacesClient) Join(ctx context.Context, token string) (*Workspace, error) {
	data, err := w.c.doRequest(ctx, http.MethodPost, "/workspaces/join", map[string]string{"token": token}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Workspace](data)
}

// ============================================================================
// Channels
// ============================================================================

type ChannelsClient struct{ c *Client }

func (ch *ChannelsClient) List(ctx context.Context, workspaceID string) ([]Channel, error) {
	data, err := ch.c.doRequest(ctx, http.MethodGet, "/channels", nil, url.Values{"workspaceId": {workspaceID}})
	if err != nil {
		return nil, err
	}
	out, err := decodeJSON[[]Channel](data)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (ch *ChannelsClient) Get(ctx context.Context, id string) (*Channel, error) {
	data, err := ch.c.doRequest(ctx, http.MethodGet, "/channels/"+esc(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Channel](data)
}

func (ch *ChannelsClient) Create(ctx context.Context, opts *CreateChannelOptions) (*Channel, error) {
	data, err := ch.c.doRequest(ctx, http.MethodPost, "/channels", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Channel](data)
}

func (ch *ChannelsClient) Update(ctx context.Context, id string, opts *UpdateChannelOptions) error {
	_, err := ch.c.doRequest(ctx, http.MethodPut, "/channels/"+esc(id), opts, nil)
	return err
}

func (ch *ChannelsClient) Archive(ctx context.Context, id string) error {
	_, err := ch.c.doRequest(ctx, http.MethodPut, "/channels/"+esc(id)+"/archive", nil, nil)
	return err
}

func (ch *ChannelsClient) Unarchive(ctx context.Context, id string) error {
	_, err := ch.c.doRequest(ctx, http.MethodPut, "/channels/"+esc(id)+"/unarchive", nil, nil)
	return err
}

func (ch *ChannelsClient) AddMember(ctx context.Context, id, userID string) error {
	_, err := ch.c.doRequest(ctx, http.MethodPost, "/channels/"+esc(id)+"/members/"+esc(userID), nil, nil)
	return err
}

func (ch *ChannelsClient) RemoveMember(ctx context.Context, id, userID string) error {
	_, err := ch.c.doRequest(ctx, http.MethodDelete, "/channels/"+esc(id)+"/members/"+esc(userID), nil, nil)
	return err
}

func (ch *ChannelsClient) AddAdmin(ctx context.Context, id, userID string) error {
	_, err := ch.c.doRequest(ctx, http.MethodPost, "/channels/"+esc(id)+"/admins", map[string]string{"userId": userID}, nil)
	return err
}

func (ch *ChannelsClient) ListDirect(ctx context.Context, workspaceID string) ([]DirectMessageChannel, error) {
	data, err := ch.c.doRequest(ctx, http.MethodGet, "/channels/direct", nil, url.Values{"workspaceId": {workspaceID}})
	if err != nil {
		return nil, err
	}
	out, err := decodeJSON[[]DirectMessageChannel](data)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// CreateDirect returns the existing DM with userID when there is one.
func (ch *ChannelsClient) CreateDirect(ctx context.Context, workspaceID, userID string) (*DirectMessageChannel, error) {
	data, err := ch.c.doRequest(ctx, http.MethodPost, "/channels/direct", map[string]string{
		"workspaceId": workspaceID, "userId": userID,
	}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[DirectMessageChannel](data)
}

// ============================================================================
// Messages
// ============================================================================

type MessagesClient struct{ c *Client }

// Send posts a message, switching to multipart when attachments are present.
func (m *MessagesClient) Send(ctx context.Context, opts *SendMessageOptions) (*Message, error) {
	var (
		data []byte
		err  error
	)
	if len(opts.Attachments) > 0 {
		data, err = m.c.doMultipart(ctx, http.MethodPost, "/messages", map[string]string{
			"workspaceId":     opts.WorkspaceID,
			"channelId":       opts.ChannelID,
			"directMessageId": opts.DirectMessageID,
			"parentId":        opts.ParentID,
			"content":         opts.Content,
		}, "attachments", opts.Attachments)
	} else {
		data, err = m.c.doRequest(ctx, http.MethodPost, "/messages", opts, nil)
	}
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

func (m *MessagesClient) ListChannel(ctx context.Context, channelID string, opts *HistoryOptions) (*MessagePage, error) {
	return m.list(ctx, "/messages/channel/"+esc(channelID), opts)
}

func (m *MessagesClient) ListDirect(ctx context.Context, directMessageID string, opts *HistoryOptions) (*MessagePage, error) {
	return m.list(ctx, "/messages/direct/"+esc(directMessageID), opts)
}

func (m *MessagesClient) list(ctx context.Context, path string, opts *HistoryOptions) (*MessagePage, error) {
	data, err := m.c.doRequest(ctx, http.MethodGet, path, nil, historyQuery(opts))
	if err != nil {
		return nil, err
	}
	return decodeMessagePage(data)
}

// decodeMessagePage keeps a hasMore that sits beside the data envelope,
// as in {"data": [...], "hasMore": false}.
func decodeMessagePage(data []byte) (*MessagePage, error) {
	page, err := decodeJSON[MessagePage](data)
	if err != nil || page.HasMore != nil {
		return page, err
	}
	var env struct {
		HasMore *bool `json:"hasMore"`
	}
	if json.Unmarshal(data, &env) == nil {
		page.HasMore = env.HasMore
	}
	return page, nil
}

func historyQuery(opts *HistoryOptions) url.Values {
	if opts == nil {
		return nil
	}
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if !opts.Before.IsZero() {
		q.Set("before", opts.Before.UTC().Format(time.RFC3339Nano))
	}
	return q
}

func (m *MessagesClient) Thread(ctx context.Context, messageID string) (*Thread, error) {
	data, err := m.c.doRequest(ctx, http.MethodGet, "/messages/"+esc(messageID)+"/thread", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Thread](data)
}

func (m *MessagesClient) Update(ctx context.Context, messageID, content string) (*Message, error) {
	data, err := m.c.doRequest(ctx, http.MethodPut, "/messages/"+esc(messageID), map[string]string{"content": content}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

func (m *MessagesClient) Delete(ctx context.Context, messageID string) error {
	_, err := m.c.doRequest(ctx, http.MethodDelete, "/messages/"+esc(messageID), nil, nil)
	return err
}

func (m *MessagesClient) AddReaction(ctx context.Context, messageID, emoji string) error {
	_, err := m.c.doRequest(ctx, http.MethodPost, "/messages/"+esc(messageID)+"/reactions", map[string]string{"emoji": emoji}, nil)
	return err
}

func (m *MessagesClient) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	_, err := m.c.doRequest(ctx, http.MethodDelete, "/messages/"+esc(messageID)+"/reactions/"+esc(emoji), nil, nil)
	return err
}

func (m *MessagesClient) Search(ctx context.Context, opts *SearchOptions) ([]Message, error) {
	q := url.Values{"q": {opts.Query}}
	if opts.WorkspaceID != "" {
		q.Set("workspaceId", opts.WorkspaceID)
	}
	if opts.ChannelID != "" {
		q.Set("channelId", opts.ChannelID)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	data, err := m.c.doRequest(ctx, http.MethodGet, "/messages/search", nil, q)
	if err != nil {
		return nil, err
	}
	out, err := decodeJSON[[]Message](data)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// ============================================================================
// Uploads
// ============================================================================

type UploadsClient struct{ c *Client }

// Upload stores a file and returns the attachment reference for it.
func (u *UploadsClient) Upload(ctx context.Context, file Upload) (*Attachment, error) {
	if file.FileName == "" {
		return nil, fmt.Errorf("fileName is required when uploading bytes")
	}
	data, err := u.c.doMultipart(ctx, http.MethodPost, "/uploads", nil, "file", []Upload{file})
	if err != nil {
		return nil, err
	}
	return decodeJSON[Attachment](data)
}
