// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"fmt"
	"net"

	"github.com/fontdepot/fontdepot/lib/codec"
)

// Call sends one request to the console socket and decodes the success
// payload into result (which may be nil when no payload is expected).
// A failure response comes back as an error.
func Call(ctx context.Context, socketPath string, request any, result any) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("dialing console: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("console: %s", response.Error)
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response payload: %w", err)
		}
	}
	return nil
}
