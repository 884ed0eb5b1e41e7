// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bureau-foundation/matrix-migrate/lib/secret"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

// Session describes how to reach one account: where, as whom, and with
// which credential. The buffers stay owned by the caller.
type Session struct {
	// Role names the side of the migration in logs ("source",
	// "destination").
	Role string

	Server   string
	User     string
	Password *secret.Buffer
	Token    *secret.Buffer
}

func (s Session) hasPassword() bool {
	return s.Password != nil && s.Password.Len() > 0
}

func (s Session) hasToken() bool {
	return s.Token != nil && s.Token.Len() > 0
}

// DeviceIDs hands out device identifiers that are unique within a run
// and, through a random run tag, across runs. Pass one generator to the
// SessionManager; it is safe for concurrent use.
type DeviceIDs struct {
	run     string
	counter atomic.Uint64
}

// NewDeviceIDs returns a generator with a fresh random run tag.
func NewDeviceIDs() *DeviceIDs {
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")
	return NewDeviceIDsWithRun(tag[:8])
}

// NewDeviceIDsWithRun returns a generator with a fixed run tag.
func NewDeviceIDsWithRun(run string) *DeviceIDs {
	return &DeviceIDs{run: run}
}

// Next returns the next identifier: matrix_migrate_<run>_<n>, with n
// starting at 1.
func (d *DeviceIDs) Next() string {
	return fmt.Sprintf("matrix_migrate_%s_%d", d.run, d.counter.Add(1))
}

// Authenticator opens sessions against a homeserver.
type Authenticator interface {
	LoginPassword(ctx context.Context, server, user string, password *secret.Buffer, deviceID string) (messaging.Session, error)
	LoginToken(ctx context.Context, server string, token *secret.Buffer) (messaging.Session, error)
}

// HTTPAuthenticator logs in over the Matrix client-server API.
type HTTPAuthenticator struct {
	HTTPClient   *http.Client
	Logger       *slog.Logger
	MaxMediaSize int64
	UserAgent    string
}

func (a *HTTPAuthenticator) client(server string) (*messaging.Client, error) {
	return messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: server,
		HTTPClient:    a.HTTPClient,
		Logger:        a.Logger,
		MaxMediaSize:  a.MaxMediaSize,
		UserAgent:     a.UserAgent,
	})
}

// LoginPassword performs m.login.password as deviceID.
func (a *HTTPAuthenticator) LoginPassword(ctx context.Context, server, user string, password *secret.Buffer, deviceID string) (messaging.Session, error) {
	client, err := a.client(server)
	if err != nil {
		return nil, err
	}
	return client.Login(ctx, messaging.LoginRequest{
		User:              user,
		Password:          password,
		DeviceID:          deviceID,
		DeviceDisplayName: "matrix-migrate",
	})
}

// LoginToken adopts an existing access token.
func (a *HTTPAuthenticator) LoginToken(ctx context.Context, server string, token *secret.Buffer) (messaging.Session, error) {
	client, err := a.client(server)
	if err != nil {
		return nil, err
	}
	return client.SessionFromToken(ctx, token)
}

// SessionManager logs accounts in and out.
type SessionManager struct {
	authenticator Authenticator
	deviceIDs     *DeviceIDs
	logger        *slog.Logger
	metrics       *Metrics
}

// NewSessionManager creates a SessionManager. deviceIDs supplies the
// device of every password login.
func NewSessionManager(authenticator Authenticator, deviceIDs *DeviceIDs, logger *slog.Logger, metrics *Metrics) *SessionManager {
	return &SessionManager{
		authenticator: authenticator,
		deviceIDs:     deviceIDs,
		logger:        logger,
		metrics:       metrics,
	}
}

// Login authenticates session and loads the account's room catalog.
// The password is used when present; the token only otherwise. A failed
// room discovery is logged and leaves the handle with an empty catalog.
func (m *SessionManager) Login(ctx context.Context, session Session) (*Handle, error) {
	logger := m.logger.With("role", session.Role, "server", session.Server)

	var (
		connection messaging.Session
		err        error
	)
	switch {
	case session.hasPassword():
		deviceID := m.deviceIDs.Next()
		logger.Debug("logging in with password", "user", session.User, "device_id", deviceID)
		connection, err = m.authenticator.LoginPassword(ctx, session.Server, session.User, session.Password, deviceID)
	case session.hasToken():
		logger.Debug("logging in with access token")
		connection, err = m.authenticator.LoginToken(ctx, session.Server, session.Token)
	default:
		return nil, fmt.Errorf("%w: %s %s: no password or token", ErrAuthentication, session.Role, session.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s as %q: %w", ErrAuthentication, session.Role, session.Server, session.User, err)
	}

	handle := &Handle{
		role:    session.Role,
		session: connection,
		catalog: NewCatalog(nil),
		logger:  logger,
		metrics: m.metrics,
	}

	catalog, err := handle.Refresh(ctx)
	if err != nil {
		m.metrics.SyncFailures.Inc()
		logger.Warn("room discovery failed, continuing with no rooms", "error", err)
	} else {
		logger.Info("logged in",
			"user_id", connection.UserID(),
			"device_id", connection.DeviceID(),
			"rooms", catalog.Len(),
		)
	}
	return handle, nil
}

// Logout invalidates the handle's token and releases it. A failed
// logout is logged, never returned.
func (m *SessionManager) Logout(ctx context.Context, handle *Handle) {
	if handle == nil {
		return
	}
	if err := handle.session.Logout(ctx); err != nil {
		handle.logger.Warn("logout failed", "error", err)
	} else {
		handle.logger.Info("logged out")
	}
	handle.session.Close()
}
