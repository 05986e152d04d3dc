// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package peer

import (
	"fmt"
	"net"
)

// Info describes a peer reachable on the network: its address and its
// verified binary ID. Equality between two Info values is by ID only:
// the address may legitimately change (e.g. a peer rebinding its port)
// while the identity stays the same.
type Info struct {
	IP   net.IP
	Port uint16
	ID   ID
}

// IsEqual reports whether two peers share the same identity.
func (p Info) IsEqual(other Info) bool {
	return p.ID.Equal(other.ID)
}

// UDPAddr returns the net.UDPAddr this peer is reachable at.
func (p Info) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: p.IP, Port: int(p.Port)}
}

// String renders the peer as "ip:port".
func (p Info) String() string {
	return fmt.Sprintf("%s:%d", p.IP.String(), p.Port)
}

// IsIPv6 reports whether the peer's address is IPv6 (as opposed to an
// IPv4 address, including 4-in-6 mapped addresses).
func (p Info) IsIPv6() bool {
	return p.IP.To4() == nil
}
