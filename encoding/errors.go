// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package encoding

import "errors"

// ErrInvalidFormat is returned by Decode when the wire bytes are
// truncated or declare a Nodes payload longer than the remaining buffer.
// An unknown message type yields ErrUnknownMessageType instead, and any
// non-zero IP discriminant is decoded as IPv6.
var ErrInvalidFormat = errors.New("encoding: invalid message format")

// ErrUnknownMessageType is returned when the leading message-type byte
// does not match any known Kadcast message. The caller should drop the
// datagram silently rather than surface this as a fatal error.
var ErrUnknownMessageType = errors.New("encoding: unknown message type")
