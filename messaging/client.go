// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/matrix-migrate/lib/netutil"
	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/lib/secret"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver (e.g., "https://matrix.example.org").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// MaxMediaSize bounds a single media download. Zero uses
	// netutil.MaxMediaSize.
	MaxMediaSize int64
	// UserAgent, if set, is sent with every request.
	UserAgent string
}

// Client is an unauthenticated Matrix client.
// It holds the homeserver URL and HTTP transport, shared across Sessions.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	logger       *slog.Logger
	maxMediaSize int64
	userAgent    string
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// Request URLs are built by concatenation onto the trimmed base, so
	// the URL is parsed only to reject garbage early.
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must use http or https", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      strings.TrimRight(config.HomeserverURL, "/"),
		httpClient:   httpClient,
		logger:       logger,
		maxMediaSize: config.MaxMediaSize,
		userAgent:    config.UserAgent,
	}, nil
}

// HomeserverURL returns the base URL this client talks to.
func (c *Client) HomeserverURL() string {
	return c.baseURL
}

// Login authenticates with m.login.password, returning a DirectSession.
// The password Buffer is read but not closed; the caller retains ownership.
//
// request.DeviceID is sent as the device to log in as. Reusing a device
// ID replaces that device's previous access token on the server, so
// callers that hold several sessions for one account must pick distinct
// IDs.
func (c *Client) Login(ctx context.Context, request LoginRequest) (*DirectSession, error) {
	if request.User == "" {
		return nil, fmt.Errorf("messaging: user is required for login")
	}
	if request.Password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	// Password is converted to string at the JSON serialization boundary.
	body := passwordLoginBody{
		Type: "m.login.password",
		Identifier: userIdentifier{
			Type: "m.id.user",
			User: request.User,
		},
		Password:                 request.Password.String(),
		DeviceID:                 request.DeviceID,
		InitialDeviceDisplayName: request.DeviceDisplayName,
	}

	responseBody, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, body)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(responseBody, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse login response: %w", err)
	}

	c.logger.Info("logged in to matrix",
		"homeserver", c.baseURL,
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.sessionFromAuth(&authResponse)
}

// SessionFromToken adopts an existing access token and validates it with
// /whoami, which also reports the user and device the token belongs to.
// The token Buffer is copied; the caller retains ownership of it.
//
// The caller must call Close on the returned DirectSession when done.
func (c *Client) SessionFromToken(ctx context.Context, token *secret.Buffer) (*DirectSession, error) {
	if token == nil {
		return nil, fmt.Errorf("messaging: access token is required")
	}
	tokenBuffer, err := secret.FromString(token.String())
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	session := &DirectSession{client: c, accessToken: tokenBuffer}

	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("messaging: token login failed: %w", err)
	}
	session.userID = whoami.UserID
	session.deviceID = whoami.DeviceID

	c.logger.Info("adopted matrix access token",
		"homeserver", c.baseURL,
		"user_id", whoami.UserID,
		"device_id", whoami.DeviceID,
	)
	return session, nil
}

func (c *Client) sessionFromAuth(auth *AuthResponse) (*DirectSession, error) {
	tokenBuffer, err := secret.FromString(auth.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      auth.UserID,
		deviceID:    auth.DeviceID,
	}, nil
}

// doRequest performs a JSON request to the homeserver and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *MatrixError. accessToken may be nil for unauthenticated endpoints.
// query may be nil for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	var bodyReader io.Reader
	contentType := ""
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	var values url.Values
	if len(query) > 0 {
		values = query[0]
	}

	response, err := c.send(ctx, method, path, values, accessToken, contentType, bodyReader)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, decodeError(response.StatusCode, responseBody)
}

// doRequestRaw posts a raw byte body (media upload) and returns the JSON
// response body. The request carries an exact Content-Length.
func (c *Client) doRequestRaw(ctx context.Context, method, path string, query url.Values, accessToken *secret.Buffer, contentType string, body []byte) ([]byte, error) {
	response, err := c.send(ctx, method, path, query, accessToken, contentType, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, decodeError(response.StatusCode, responseBody)
}

// send builds and executes one request. The caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, accessToken *secret.Buffer, contentType string, body io.Reader) (*http.Response, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}
	if c.userAgent != "" {
		request.Header.Set("User-Agent", c.userAgent)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	return response, nil
}

// decodeError converts a non-2xx response into a *MatrixError. Servers
// and reverse proxies in front of them sometimes answer with HTML; those
// become M_UNKNOWN carrying the start of the raw body.
func decodeError(statusCode int, body []byte) error {
	var matrixErr MatrixError
	if err := json.Unmarshal(body, &matrixErr); err != nil || matrixErr.Code == "" {
		message := string(body)
		if len(message) > 512 {
			message = message[:512]
		}
		return &MatrixError{Code: ErrCodeUnknown, Message: message, StatusCode: statusCode}
	}
	matrixErr.StatusCode = statusCode
	return &matrixErr
}

// mediaPath builds a download path for uri under prefix. Both halves of
// the URI are escaped individually.
func mediaPath(prefix string, uri ref.ContentURI) string {
	return prefix + url.PathEscape(uri.Server()) + "/" + url.PathEscape(uri.MediaID())
}
