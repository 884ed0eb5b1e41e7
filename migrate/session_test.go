// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/matrix-migrate/messaging"
)

func TestDeviceIDs(t *testing.T) {
	generator := NewDeviceIDsWithRun("abc")
	if first := generator.Next(); first != "matrix_migrate_abc_1" {
		t.Errorf("first = %q", first)
	}
	if second := generator.Next(); second != "matrix_migrate_abc_2" {
		t.Errorf("second = %q", second)
	}

	pattern := regexp.MustCompile(`^matrix_migrate_[0-9a-f]{8}_1$`)
	one, two := NewDeviceIDs().Next(), NewDeviceIDs().Next()
	if !pattern.MatchString(one) {
		t.Errorf("random run tag malformed: %q", one)
	}
	if one == two {
		t.Errorf("two runs produced the same device ID %q", one)
	}
}

func TestLoginPrefersPassword(t *testing.T) {
	server := newFakeServer("old.example", nil)
	authenticator := newFakeAuthenticator(server)
	manager := NewSessionManager(authenticator, NewDeviceIDsWithRun("run"), testLogger(), NewMetrics())

	handle, err := manager.Login(context.Background(), Session{
		Role:     "source",
		Server:   server.url(),
		User:     "migrator",
		Password: testBuffer(t, "pw"),
		Token:    testBuffer(t, "syt_token"),
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(authenticator.logins) != 1 || authenticator.logins[0] != "password matrix_migrate_run_1" {
		t.Errorf("logins = %v, want one password login", authenticator.logins)
	}
	if handle.Session().DeviceID() != "matrix_migrate_run_1" {
		t.Errorf("DeviceID = %q", handle.Session().DeviceID())
	}
}

func TestLoginFallsBackToToken(t *testing.T) {
	server := newFakeServer("old.example", nil)
	authenticator := newFakeAuthenticator(server)
	manager := NewSessionManager(authenticator, NewDeviceIDsWithRun("run"), testLogger(), NewMetrics())

	_, err := manager.Login(context.Background(), Session{
		Server: server.url(),
		User:   "migrator",
		Token:  testBuffer(t, "syt_token"),
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(authenticator.logins) != 1 || authenticator.logins[0] != "token" {
		t.Errorf("logins = %v, want one token login", authenticator.logins)
	}
}

func TestLoginSessionsNeverShareDevice(t *testing.T) {
	source := newFakeServer("old.example", nil)
	destination := newFakeServer("new.example", nil)
	authenticator := newFakeAuthenticator(source, destination)
	manager := NewSessionManager(authenticator, NewDeviceIDsWithRun("run"), testLogger(), NewMetrics())

	first, err := manager.Login(context.Background(), Session{Server: source.url(), User: "a", Password: testBuffer(t, "x")})
	if err != nil {
		t.Fatalf("Login source: %v", err)
	}
	second, err := manager.Login(context.Background(), Session{Server: destination.url(), User: "a", Password: testBuffer(t, "x")})
	if err != nil {
		t.Fatalf("Login destination: %v", err)
	}
	if first.Session().DeviceID() == second.Session().DeviceID() {
		t.Errorf("both sessions use device %q", first.Session().DeviceID())
	}
}

func TestLoginFailures(t *testing.T) {
	server := newFakeServer("old.example", nil)

	t.Run("no credential", func(t *testing.T) {
		manager := NewSessionManager(newFakeAuthenticator(server), NewDeviceIDsWithRun("run"), testLogger(), NewMetrics())
		_, err := manager.Login(context.Background(), Session{Server: server.url(), User: "a"})
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication, got %v", err)
		}
	})

	t.Run("rejected password", func(t *testing.T) {
		authenticator := newFakeAuthenticator(server)
		authenticator.rejectPassword = true
		manager := NewSessionManager(authenticator, NewDeviceIDsWithRun("run"), testLogger(), NewMetrics())
		_, err := manager.Login(context.Background(), Session{Server: server.url(), User: "a", Password: testBuffer(t, "bad")})
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication, got %v", err)
		}
		if !messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
			t.Errorf("server error not wrapped: %v", err)
		}
	})
}

func TestLoginSyncFailureYieldsEmptyCatalog(t *testing.T) {
	server := newFakeServer("old.example", nil)
	server.addRoom("general", textEvent("hi"))
	server.failSync = errors.New("gateway timeout")
	metrics := NewMetrics()

	handle := loginHandle(t, server, "source", metrics)
	if handle.Catalog().Len() != 0 {
		t.Errorf("catalog has %d rooms, want 0 after a failed sync", handle.Catalog().Len())
	}
	if got := testutil.ToFloat64(metrics.SyncFailures); got != 1 {
		t.Errorf("sync failures = %v, want 1", got)
	}
}

func TestLoginLoadsCatalog(t *testing.T) {
	server := newFakeServer("old.example", nil)
	server.addRoom("general", textEvent("hi"))
	server.addRoom("random")

	handle := loginHandle(t, server, "source", NewMetrics())
	rooms := handle.Catalog().Rooms()
	if len(rooms) != 2 || rooms[0].Name != "general" || rooms[1].Name != "random" {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestLogoutToleratesFailure(t *testing.T) {
	server := newFakeServer("old.example", nil)
	server.failLogout = errors.New("connection reset")
	manager := NewSessionManager(newFakeAuthenticator(server), NewDeviceIDsWithRun("run"), testLogger(), NewMetrics())

	handle, err := manager.Login(context.Background(), Session{Server: server.url(), User: "a", Password: testBuffer(t, "x")})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	manager.Logout(context.Background(), handle)

	if !handle.Session().(*fakeSession).closed {
		t.Error("session not closed after a failed logout")
	}
	manager.Logout(context.Background(), nil)
}
