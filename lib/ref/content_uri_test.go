// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"strings"
	"testing"
)

func TestParseContentURI(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantServer string
		wantMedia  string
		wantErr    string
	}{
		{name: "simple", input: "mxc://example.org/AbCdEf", wantServer: "example.org", wantMedia: "AbCdEf"},
		{name: "server with port", input: "mxc://localhost:8008/xyz", wantServer: "localhost:8008", wantMedia: "xyz"},
		{name: "empty", input: "", wantErr: "empty content URI"},
		{name: "http scheme", input: "https://example.org/abc", wantErr: "must start with"},
		{name: "no server", input: "mxc:///abc", wantErr: "missing server name"},
		{name: "no media id", input: "mxc://example.org/", wantErr: "invalid media ID"},
		{name: "no slash", input: "mxc://example.org", wantErr: "missing server name"},
		{name: "nested path", input: "mxc://example.org/a/b", wantErr: "invalid media ID"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			uri, err := ParseContentURI(test.input)
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("ParseContentURI(%q) error = %v, want error containing %q", test.input, err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseContentURI(%q): %v", test.input, err)
			}
			if uri.Server() != test.wantServer || uri.MediaID() != test.wantMedia {
				t.Errorf("got (%q, %q), want (%q, %q)", uri.Server(), uri.MediaID(), test.wantServer, test.wantMedia)
			}
			if uri.String() != test.input {
				t.Errorf("String() = %q, want %q", uri.String(), test.input)
			}
		})
	}
}
