// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package console is the admin channel of the FontDepot daemon.
//
// It serves a CBOR request-response protocol on a Unix socket. Each
// connection carries exactly one request and one response; requests
// are routed by their "action" field. The font actions are
// "fonts/download", "fonts/cancel" (empty urls = whole batch),
// "fonts/status", and "fonts/delete".
//
// Status responses advertise the configured poll interval so clients
// know how often to come back; cancellation acknowledgment is observed
// through polling, never assumed synchronous.
package console
