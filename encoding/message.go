// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package encoding

import (
	"bytes"
	"encoding/binary"
	"io"
)

// MsgType identifies the kind of message carried by a frame.
type MsgType byte

// Message types. Unknown types are silently dropped.
const (
	PingMsg      MsgType = 0
	PongMsg      MsgType = 1
	FindNodesMsg MsgType = 2
	NodesMsg     MsgType = 3
	BroadcastMsg MsgType = 10
)

// HeaderFixedLength is the size in bytes of the fixed-width portion of
// the header preceding the variable-length Version field (id, nonce,
// sender_port, network_id, version_len).
const HeaderFixedLength = IDSize + NonceSize + 2 + 1 + 1

// FindNodesPayload is the wire form of a FIND_NODES request: a single
// 16-byte target ID.
type FindNodesPayload struct {
	Target [IDSize]byte
}

func (p FindNodesPayload) encode(buf *bytes.Buffer) error {
	buf.Write(p.Target[:])
	return nil
}

func decodeFindNodesPayload(r *bytes.Reader) (FindNodesPayload, error) {
	var p FindNodesPayload
	if _, err := io.ReadFull(r, p.Target[:]); err != nil {
		return p, ErrInvalidFormat
	}
	return p, nil
}

// BroadcastPayload is the wire form of a BROADCAST message:
//
//	height(1) || length(4, LE) || gossip_frame(length)
type BroadcastPayload struct {
	Height      byte
	GossipFrame []byte
}

func (p BroadcastPayload) encode(buf *bytes.Buffer) error {
	buf.WriteByte(p.Height)

	var lenLE [4]byte
	binary.LittleEndian.PutUint32(lenLE[:], uint32(len(p.GossipFrame)))
	buf.Write(lenLE[:])

	buf.Write(p.GossipFrame)
	return nil
}

func decodeBroadcastPayload(r *bytes.Reader) (BroadcastPayload, error) {
	var p BroadcastPayload

	height, err := r.ReadByte()
	if err != nil {
		return p, ErrInvalidFormat
	}
	p.Height = height

	var lenLE [4]byte
	if _, err := io.ReadFull(r, lenLE[:]); err != nil {
		return p, ErrInvalidFormat
	}
	length := binary.LittleEndian.Uint32(lenLE[:])

	if uint32(r.Len()) < length {
		return p, ErrInvalidFormat
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return p, ErrInvalidFormat
	}
	p.GossipFrame = frame

	return p, nil
}

// Frame is a fully-decoded wire message: its type, header, and payload.
// Payload is one of FindNodesPayload, NodesPayload, BroadcastPayload, or
// nil for PING/PONG (which carry no payload beyond the header).
type Frame struct {
	Type    MsgType
	Header  Header
	Payload interface{}
}

// MarshalBinary encodes a full frame: msg_type(1) || header || payload.
func MarshalBinary(msgType MsgType, header Header, payload interface{}, buf *bytes.Buffer) error {
	buf.WriteByte(byte(msgType))

	if err := header.Encode(buf); err != nil {
		return err
	}

	switch p := payload.(type) {
	case nil:
		// PING/PONG carry no payload.
	case FindNodesPayload:
		return p.encode(buf)
	case NodesPayload:
		return p.Encode(buf)
	case BroadcastPayload:
		return p.encode(buf)
	default:
		return ErrInvalidFormat
	}

	return nil
}

// Unmarshal decodes a full frame. Unknown message types return
// ErrUnknownMessageType so callers can silently drop the datagram
// rather than treating it as a fatal decode error.
func Unmarshal(data []byte) (Frame, error) {
	r := bytes.NewReader(data)

	msgTypeByte, err := r.ReadByte()
	if err != nil {
		return Frame{}, ErrInvalidFormat
	}
	msgType := MsgType(msgTypeByte)

	header, err := DecodeHeader(r)
	if err != nil {
		return Frame{}, err
	}

	var payload interface{}

	switch msgType {
	case PingMsg, PongMsg:
		// no payload
	case FindNodesMsg:
		payload, err = decodeFindNodesPayload(r)
	case NodesMsg:
		payload, err = DecodeNodesPayload(r)
	case BroadcastMsg:
		payload, err = decodeBroadcastPayload(r)
	default:
		return Frame{}, ErrUnknownMessageType
	}

	if err != nil {
		return Frame{}, err
	}

	return Frame{Type: msgType, Header: header, Payload: payload}, nil
}
