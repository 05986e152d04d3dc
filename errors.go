// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import "errors"

// Error kinds returned across the package. Configuration and Fatal
// errors are returned from New/LoadConfig to the caller; Transport and
// FecError are also returned from Peer.Broadcast/Send/Ping when a frame
// cannot be encoded or enqueued; the rest are logged internally and never
// surfaced. No runtime code path panics on external input.
var (
	// ErrConfiguration marks an invalid configuration value, surfaced at
	// New/LoadConfig.
	ErrConfiguration = errors.New("kadcast: configuration error")

	// ErrUntrusted marks a message that failed PoW, ID consistency, or
	// network/version checks. The sender is never inserted.
	ErrUntrusted = errors.New("kadcast: untrusted message")

	// ErrRoutingFull marks a rejected insert: the bucket is full and
	// already has a pending-eviction probe outstanding.
	ErrRoutingFull = errors.New("kadcast: routing table bucket full")

	// ErrFecError marks a RaptorQ decode or RAY_ID mismatch.
	ErrFecError = errors.New("kadcast: fec decode error")

	// ErrTransport marks a send failure: marshal error, oversized frame,
	// or a full outbound queue. UDP is fire-and-forget, so this only
	// reports enqueue failures, never delivery.
	ErrTransport = errors.New("kadcast: transport error")

	// ErrFatal marks a startup failure: socket bind or configuration.
	ErrFatal = errors.New("kadcast: fatal error")
)
