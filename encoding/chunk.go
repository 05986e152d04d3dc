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

const (
	// RayIDSize is the length of the BLAKE2s256 digest identifying a
	// broadcast's gossip frame, independent of height.
	RayIDSize = 32

	// OTISize is the length of the RFC 6330 common + scheme-specific
	// Object Transmission Information, serialized per ObjectTransmissionInformation.Encode.
	OTISize = 12

	// ChunkedPayloadMinLen is the minimum legal length of a ChunkedPayload
	// gossip frame: ray_id || transmission_info with an empty symbol.
	ChunkedPayloadMinLen = RayIDSize + OTISize
)

// ObjectTransmissionInformation is the RaptorQ OTI (RFC 6330 §3.3.3): the
// parameters a decoder needs to reconstruct an object from its encoded
// symbols, without which incoming chunks cannot be interpreted.
type ObjectTransmissionInformation struct {
	TransferLength   uint64 // fits in 40 bits on the wire
	SymbolSize       uint16
	NumSourceBlocks  uint8
	NumSubBlocks     uint16
	SymbolAlignment  uint8
}

// Encode writes the 12-byte OTI encoding.
func (o ObjectTransmissionInformation) Encode(buf *bytes.Buffer) {
	var transferLen [5]byte
	tmp := o.TransferLength
	for i := 4; i >= 0; i-- {
		transferLen[i] = byte(tmp)
		tmp >>= 8
	}
	buf.Write(transferLen[:])

	buf.WriteByte(0) // reserved

	var symbolSize [2]byte
	binary.LittleEndian.PutUint16(symbolSize[:], o.SymbolSize)
	buf.Write(symbolSize[:])

	buf.WriteByte(o.NumSourceBlocks)

	var subBlocks [2]byte
	binary.LittleEndian.PutUint16(subBlocks[:], o.NumSubBlocks)
	buf.Write(subBlocks[:])

	buf.WriteByte(o.SymbolAlignment)
}

// DecodeOTI reads a 12-byte OTI from r.
func DecodeOTI(r *bytes.Reader) (ObjectTransmissionInformation, error) {
	var o ObjectTransmissionInformation

	if r.Len() < OTISize {
		return o, ErrInvalidFormat
	}

	var transferLen [5]byte
	if _, err := io.ReadFull(r, transferLen[:]); err != nil {
		return o, ErrInvalidFormat
	}
	for _, b := range transferLen {
		o.TransferLength = o.TransferLength<<8 | uint64(b)
	}

	if _, err := r.ReadByte(); err != nil { // reserved
		return o, ErrInvalidFormat
	}

	var symbolSize [2]byte
	if _, err := io.ReadFull(r, symbolSize[:]); err != nil {
		return o, ErrInvalidFormat
	}
	o.SymbolSize = binary.LittleEndian.Uint16(symbolSize[:])

	numSourceBlocks, err := r.ReadByte()
	if err != nil {
		return o, ErrInvalidFormat
	}
	o.NumSourceBlocks = numSourceBlocks

	var subBlocks [2]byte
	if _, err := io.ReadFull(r, subBlocks[:]); err != nil {
		return o, ErrInvalidFormat
	}
	o.NumSubBlocks = binary.LittleEndian.Uint16(subBlocks[:])

	symbolAlignment, err := r.ReadByte()
	if err != nil {
		return o, ErrInvalidFormat
	}
	o.SymbolAlignment = symbolAlignment

	return o, nil
}

// ChunkHeader is the ChunkCache key: (RAY_ID, TransmissionInfo). The 12
// raw OTI bytes are used directly as the map key component rather than
// the parsed struct, since two peers that derive the same OTI for the
// same object will always serialize it identically.
type ChunkHeader struct {
	RayID [RayIDSize]byte
	OTI   [OTISize]byte
}

// ChunkedPayload is the FEC form of a broadcast gossip frame:
//
//	ray_id(32) || transmission_info(12) || encoded_chunk(remaining)
//
// encoded_chunk, when non-empty, is esi(4, LE) || symbol_data.
type ChunkedPayload struct {
	RayID  [RayIDSize]byte
	OTI    ObjectTransmissionInformation
	ESI    uint32
	Symbol []byte
}

// Header returns the ChunkCache lookup key for this chunk.
func (c ChunkedPayload) Header() ChunkHeader {
	var h ChunkHeader
	h.RayID = c.RayID

	var oti bytes.Buffer
	c.OTI.Encode(&oti)
	copy(h.OTI[:], oti.Bytes())

	return h
}

// Encode serializes the chunk as a gossip frame payload.
func (c ChunkedPayload) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(c.RayID[:])
	c.OTI.Encode(&buf)

	if len(c.Symbol) > 0 || c.ESI != 0 {
		var esi [4]byte
		binary.LittleEndian.PutUint32(esi[:], c.ESI)
		buf.Write(esi[:])
		buf.Write(c.Symbol)
	}

	return buf.Bytes()
}

// DecodeChunkedPayload parses a gossip frame as a ChunkedPayload. Returns
// ErrInvalidFormat if shorter than ChunkedPayloadMinLen.
func DecodeChunkedPayload(frame []byte) (ChunkedPayload, error) {
	if len(frame) < ChunkedPayloadMinLen {
		return ChunkedPayload{}, ErrInvalidFormat
	}

	r := bytes.NewReader(frame)

	var c ChunkedPayload
	if _, err := io.ReadFull(r, c.RayID[:]); err != nil {
		return ChunkedPayload{}, ErrInvalidFormat
	}

	oti, err := DecodeOTI(r)
	if err != nil {
		return ChunkedPayload{}, err
	}
	c.OTI = oti

	if r.Len() >= 4 {
		var esi [4]byte
		if _, err := io.ReadFull(r, esi[:]); err != nil {
			return ChunkedPayload{}, ErrInvalidFormat
		}
		c.ESI = binary.LittleEndian.Uint32(esi[:])

		remaining := make([]byte, r.Len())
		if _, err := io.ReadFull(r, remaining); err != nil {
			return ChunkedPayload{}, ErrInvalidFormat
		}
		c.Symbol = remaining
	}

	return c, nil
}
