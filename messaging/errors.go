// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

// MatrixError is the decoded {"errcode", "error"} body of a failed
// client-server request, plus the HTTP status it arrived with. A
// non-JSON error body (a proxy's HTML 502, a bare 404) decodes as
// M_UNKNOWN with the start of the body as Message.
type MatrixError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Error codes the migrator meets.
const (
	// ErrCodeForbidden rejects a password login or a send into a room
	// the account may not post to.
	ErrCodeForbidden = "M_FORBIDDEN"

	// ErrCodeUnknownToken rejects an access token at whoami.
	ErrCodeUnknownToken = "M_UNKNOWN_TOKEN"

	// ErrCodeNotFound on a media download means the blob is gone; the
	// legacy endpoint is not tried.
	ErrCodeNotFound = "M_NOT_FOUND"

	// ErrCodeUnrecognized on the authenticated media endpoint means the
	// server predates it; the download falls back to /_matrix/media/v3.
	ErrCodeUnrecognized = "M_UNRECOGNIZED"

	// ErrCodeTooLarge is an upload refused by the destination's size
	// limit.
	ErrCodeTooLarge = "M_TOO_LARGE"

	// ErrCodeUnknown is also what decodeError assigns to bodies that
	// carry no errcode.
	ErrCodeUnknown = "M_UNKNOWN"
)

// IsMatrixError reports whether err wraps a *MatrixError with code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	return errors.As(err, &matrixErr) && matrixErr.Code == code
}

// statusOf returns the HTTP status of a *MatrixError in err's chain, or
// zero.
func statusOf(err error) int {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.StatusCode
	}
	return 0
}
