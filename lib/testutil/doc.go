// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by concurrency tests.
//
// The helpers wrap channel operations with timeouts so a broken wakeup
// path fails the test instead of hanging the suite.
package testutil
