// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/dusk-network/kadcast/peer"
)

const (
	ipDiscV4 = byte(0)
	ipDiscV6 = byte(1)
)

// EncodePeerInfo appends the wire encoding of a peer advertisement to
// buf:
//
//	ip_disc(1) || ip(4 or 16) || port(2, LE) || id(16)
func EncodePeerInfo(buf *bytes.Buffer, p peer.Info) {
	if v4 := p.IP.To4(); v4 != nil {
		buf.WriteByte(ipDiscV4)
		buf.Write(v4)
	} else {
		buf.WriteByte(ipDiscV6)
		buf.Write(p.IP.To16())
	}

	var portLE [2]byte
	binary.LittleEndian.PutUint16(portLE[:], p.Port)
	buf.Write(portLE[:])

	buf.Write(p.ID.Bytes[:])
}

// DecodePeerInfo reads one wire-encoded peer advertisement from r and
// returns it as a
// peer.Info (nonce is not carried on the wire; callers that need it must
// verify PoW separately using a trusted nonce exchanged out of band, or
// treat the decoded peer as nonce-less until re-verified).
func DecodePeerInfo(r *bytes.Reader) (peer.Info, error) {
	disc, err := r.ReadByte()
	if err != nil {
		return peer.Info{}, ErrInvalidFormat
	}

	var ipLen int
	switch disc {
	case ipDiscV4:
		ipLen = net.IPv4len
	default:
		ipLen = net.IPv6len
	}

	if r.Len() < ipLen+2+IDSize {
		return peer.Info{}, ErrInvalidFormat
	}

	ipBytes := make([]byte, ipLen)
	if _, err := io.ReadFull(r, ipBytes); err != nil {
		return peer.Info{}, ErrInvalidFormat
	}

	var portLE [2]byte
	if _, err := io.ReadFull(r, portLE[:]); err != nil {
		return peer.Info{}, ErrInvalidFormat
	}

	var id [IDSize]byte
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return peer.Info{}, ErrInvalidFormat
	}

	return peer.Info{
		IP:   net.IP(ipBytes),
		Port: binary.LittleEndian.Uint16(portLE[:]),
		ID:   peer.ID{Bytes: id},
	}, nil
}

// MakePeerFromAddr parses a "host:port" string into a bare peer.Info with
// a zero ID, used for point-to-point sends where the destination ID is
// not yet known/verified (the caller addresses by network location).
func MakePeerFromAddr(addr string) (peer.Info, error) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found {
		return peer.Info{}, fmt.Errorf("encoding: malformed address %q", addr)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return peer.Info{}, fmt.Errorf("encoding: malformed port in %q: %w", addr, err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return peer.Info{}, fmt.Errorf("encoding: malformed ip in %q", addr)
	}

	return peer.Info{IP: ip, Port: uint16(port)}, nil
}

// NodesPayload is the wire form of the NODES response:
//
//	count(2, LE) || count x peer-info entries
type NodesPayload struct {
	Peers []peer.Info
}

// Encode appends the wire encoding of the NODES payload to buf.
func (p NodesPayload) Encode(buf *bytes.Buffer) error {
	if len(p.Peers) > 0xFFFF {
		return ErrInvalidFormat
	}

	var countLE [2]byte
	binary.LittleEndian.PutUint16(countLE[:], uint16(len(p.Peers)))
	buf.Write(countLE[:])

	for _, pr := range p.Peers {
		EncodePeerInfo(buf, pr)
	}

	return nil
}

// DecodeNodesPayload reads a NODES payload from r. It fails with
// ErrInvalidFormat when the declared count exceeds the number of peers
// that actually fit in the remaining buffer.
func DecodeNodesPayload(r *bytes.Reader) (NodesPayload, error) {
	var countLE [2]byte
	if _, err := io.ReadFull(r, countLE[:]); err != nil {
		return NodesPayload{}, ErrInvalidFormat
	}

	count := binary.LittleEndian.Uint16(countLE[:])

	peers := make([]peer.Info, 0, count)
	for i := uint16(0); i < count; i++ {
		if r.Len() == 0 {
			return NodesPayload{}, ErrInvalidFormat
		}

		p, err := DecodePeerInfo(r)
		if err != nil {
			return NodesPayload{}, err
		}
		peers = append(peers, p)
	}

	return NodesPayload{Peers: peers}, nil
}
