package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"updrive/internal/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "UPDRIVE_HTTP_TIMEOUT"
	tokenEnvKey        = "UPDRIVE_TOKEN"

	// UploadField is the multipart field carrying file content.
	UploadField = "upload"
)

// Client is a simple HTTP client for the UpDrive API.
type Client struct {
	baseURL   string
	http      *http.Client
	transfer  *http.Client
	authToken string
}

// NewClient creates a new API client. The bearer token defaults to UPDRIVE_TOKEN.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: httpTimeoutFromEnv()},
		transfer:  &http.Client{},
		authToken: strings.TrimSpace(os.Getenv(tokenEnvKey)),
	}
}

// WithToken replaces the bearer token.
func (c *Client) WithToken(token string) *Client {
	c.authToken = strings.TrimSpace(token)
	return c
}

// HasToken reports whether requests will carry a bearer token.
func (c *Client) HasToken() bool {
	return c.authToken != ""
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/", nil, nil, &resp)
	return resp, err
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (UserResponse, error) {
	var resp UserResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &resp)
	return resp, err
}

// Token exchanges credentials for an access token using the password form flow.
func (c *Client) Token(ctx context.Context, username, password string) (TokenResponse, error) {
	var resp TokenResponse
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	setForwardedFor(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (UserResponse, error) {
	var resp UserResponse
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &resp)
	return resp, err
}

func (c *Client) Usage(ctx context.Context) (models.Usage, error) {
	var resp models.Usage
	err := c.do(ctx, http.MethodGet, "/api/usage", nil, nil, &resp)
	return resp, err
}

func (c *Client) ListFiles(ctx context.Context, query url.Values) ([]models.File, error) {
	var resp []models.File
	err := c.do(ctx, http.MethodGet, "/api/files", query, nil, &resp)
	return resp, err
}

func (c *Client) Drive(ctx context.Context, folderID *int64) (models.DriveListing, error) {
	var resp models.DriveListing
	err := c.do(ctx, http.MethodGet, "/api/drive", folderQuery(folderID), nil, &resp)
	return resp, err
}

func (c *Client) ListFolders(ctx context.Context) ([]models.Folder, error) {
	var resp []models.Folder
	err := c.do(ctx, http.MethodGet, "/api/folders", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateFolder(ctx context.Context, req FolderCreateRequest) (models.Folder, error) {
	var resp models.Folder
	err := c.do(ctx, http.MethodPost, "/api/folders", nil, req, &resp)
	return resp, err
}

func (c *Client) RenameFile(ctx context.Context, id, newName string) (models.File, error) {
	var resp models.File
	err := c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(id)+"/rename", nil, RenameRequest{NewName: newName}, &resp)
	return resp, err
}

func (c *Client) MoveFile(ctx context.Context, id string, folderID *int64) (models.File, error) {
	var resp models.File
	err := c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(id)+"/move", nil, MoveRequest{FolderID: folderID}, &resp)
	return resp, err
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, nil, nil)
}

// Upload streams r as a multipart form without buffering it in memory.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader, folderID *int64) (models.File, error) {
	var resp models.File

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(WriteUploadPart(mw, filename, contentType, r))
	}()

	endpoint := c.baseURL + "/api/upload"
	if q := folderQuery(folderID); len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.setAuthHeader(req)
	setForwardedFor(req)

	httpResp, err := c.transfer.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

// Download streams file content into w and returns the advertised filename.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return "", 0, err
	}
	c.setAuthHeader(req)
	setForwardedFor(req)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, decodeError(resp)
	}

	filename := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	n, err := io.Copy(w, resp.Body)
	return filename, n, err
}

// WriteUploadPart writes r as the single upload file part and closes mw.
func WriteUploadPart(mw *multipart.Writer, filename, contentType string, r io.Reader) error {
	if contentType == "" {
		contentType = models.DefaultMediaType
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     UploadField,
		"filename": filename,
	}))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

func folderQuery(folderID *int64) url.Values {
	if folderID == nil {
		return nil
	}
	q := url.Values{}
	q.Set("folder_id", strconv.FormatInt(*folderID, 10))
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.setAuthHeader(req)
	setForwardedFor(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

type forwardedForKey struct{}

// ForwardedForHeader carries the original client address through a proxy.
const ForwardedForHeader = "X-Forwarded-For"

// WithForwardedFor marks requests made with ctx as sent on behalf of ip.
func WithForwardedFor(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, forwardedForKey{}, ip)
}

func setForwardedFor(req *http.Request) {
	if ip, _ := req.Context().Value(forwardedForKey{}).(string); ip != "" {
		req.Header.Set(ForwardedForHeader, ip)
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
