// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import "errors"

// Failure classes. Returned errors wrap exactly one of these; use
// errors.Is to classify.
var (
	// ErrAuthentication: a login was rejected or no credential was
	// supplied. Fatal.
	ErrAuthentication = errors.New("authentication failed")

	// ErrSync: a sync or room listing failed. Logged; the affected
	// catalog or timeline comes back empty.
	ErrSync = errors.New("sync failed")

	// ErrRoomCreation: the destination refused to create a room. Fatal.
	ErrRoomCreation = errors.New("room creation failed")

	// ErrMessageFetch: a history page could not be fetched. Ends
	// pagination in that direction, fatal only in strict mode.
	ErrMessageFetch = errors.New("message fetch failed")

	// ErrMediaDownload: an attachment could not be downloaded. An empty
	// payload is forwarded instead, fatal only in strict mode.
	ErrMediaDownload = errors.New("media download failed")

	// ErrMediaUpload: the destination refused an attachment. Fatal.
	ErrMediaUpload = errors.New("media upload failed")

	// ErrMessageSend: the destination refused a message. Fatal.
	ErrMessageSend = errors.New("message send failed")

	// ErrLedger: the ledger database failed. Fatal.
	ErrLedger = errors.New("ledger failed")
)
