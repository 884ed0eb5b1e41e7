// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"status":"ok"}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"status":"ok"}` {
			t.Fatalf("got %q, want %q", data, `{"status":"ok"}`)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(&failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestReadMedia(t *testing.T) {
	t.Run("exact limit fits", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0xAB}, 5000)
		data, err := ReadMedia(bytes.NewReader(payload), 5000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) != 5000 {
			t.Fatalf("got %d bytes, want 5000", len(data))
		}
	})

	t.Run("over limit fails", func(t *testing.T) {
		_, err := ReadMedia(strings.NewReader("123456"), 5)
		if !errors.Is(err, ErrMediaTooLarge) {
			t.Fatalf("error = %v, want ErrMediaTooLarge", err)
		}
	})

	t.Run("zero limit uses default", func(t *testing.T) {
		data, err := ReadMedia(strings.NewReader("abc"), 0)
		if err != nil || string(data) != "abc" {
			t.Fatalf("got (%q, %v)", data, err)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadMedia(&failReader{}, 10); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(strings.NewReader("bad gateway")); got != "bad gateway" {
		t.Errorf("ErrorBody = %q", got)
	}
	if got := ErrorBody(&failReader{}); got != "" {
		t.Errorf("ErrorBody on failing reader = %q, want empty", got)
	}
}

type failReader struct{}

func (r *failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
