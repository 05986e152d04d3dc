// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package fec implements the Kadcast FEC engine: RaptorQ encoding of
// large broadcast gossip frames into MTU-sized chunks, decoding of
// received chunks back into a frame, and the ChunkCache that
// deduplicates broadcasts and bounds decoder memory via TTL eviction.
package fec

import (
	"math"

	"github.com/dusk-network/kadcast/encoding"
	"github.com/pkg/errors"
	"github.com/xssnick/raptorq"
	"golang.org/x/crypto/blake2s"
)

// EncodeConfig bounds the symbol size chosen for a given MTU: the symbol
// size is picked so every produced packet (ray_id(32) || oti(12) ||
// esi(4) || symbol) fits within max_udp_len minus header overhead.
type EncodeConfig struct {
	// MaxUDPLen is the outer datagram size budget (spec: [1296, 8192]).
	MaxUDPLen int

	// FrameHeaderOverhead is the size of the message-type + Header
	// bytes wrapping the BROADCAST payload that itself wraps the
	// ChunkedPayload gossip frame.
	FrameHeaderOverhead int

	// RedundancyFactor (f) produces ceil(s*f) extra repair symbols
	// beyond the s source symbols.
	RedundancyFactor float64

	// MinRepairPackets is the floor on repair symbols regardless of f,
	// from Config.FEC.MinRepairPacketsPerBlock.
	MinRepairPackets int
}

const chunkWireOverhead = encoding.RayIDSize + encoding.OTISize + 4 // + ESI

// symbolSize computes the RaptorQ symbol size so that a fully-wrapped
// ChunkedPayload datagram never exceeds cfg.MaxUDPLen.
func (cfg EncodeConfig) symbolSize() int {
	budget := cfg.MaxUDPLen - cfg.FrameHeaderOverhead - chunkWireOverhead
	if budget < 1 {
		budget = 1
	}
	return budget
}

// RayID computes the deduplication key for a gossip frame: BLAKE2s256 of
// the frame bytes. Height is deliberately excluded so that the same
// broadcast forwarded at different heights collides in the cache.
func RayID(gossipFrame []byte) [encoding.RayIDSize]byte {
	sum := blake2s.Sum256(gossipFrame)
	return sum
}

// Encode splits gossipFrame into n = s + max(ceil(s*f), MinRepairPackets)
// ChunkedPayload symbols using RaptorQ, where s is the number of RaptorQ
// source symbols implied by the chosen symbol size.
func Encode(gossipFrame []byte, cfg EncodeConfig) ([]encoding.ChunkedPayload, error) {
	symbolSize := cfg.symbolSize()

	rq := raptorq.NewRaptorQ(uint32(symbolSize))

	encoder, err := rq.CreateEncoder(gossipFrame)
	if err != nil {
		return nil, errors.Wrap(err, "fec: failed to create raptorq encoder")
	}

	sourceSymbols := encoder.BaseSymbolsNum()

	repair := int(math.Ceil(float64(sourceSymbols) * cfg.RedundancyFactor))
	if repair < cfg.MinRepairPackets {
		repair = cfg.MinRepairPackets
	}

	total := int(sourceSymbols) + repair

	rayID := RayID(gossipFrame)

	oti := encoding.ObjectTransmissionInformation{
		TransferLength:  uint64(len(gossipFrame)),
		SymbolSize:      uint16(symbolSize),
		NumSourceBlocks: 1,
		NumSubBlocks:    1,
		SymbolAlignment: 1,
	}

	chunks := make([]encoding.ChunkedPayload, 0, total)
	for esi := uint32(0); esi < uint32(total); esi++ {
		symbol := encoder.GenSymbol(esi)

		chunks = append(chunks, encoding.ChunkedPayload{
			RayID:  rayID,
			OTI:    oti,
			ESI:    esi,
			Symbol: symbol,
		})
	}

	return chunks, nil
}

// Decoder accumulates RaptorQ symbols for one in-flight object until
// enough have arrived to reconstruct it.
type Decoder struct {
	rq  *raptorq.RaptorQ
	dec *raptorq.Decoder
	oti encoding.ObjectTransmissionInformation
}

// NewDecoder allocates a Decoder for an object described by oti.
func NewDecoder(oti encoding.ObjectTransmissionInformation) *Decoder {
	rq := raptorq.NewRaptorQ(uint32(oti.SymbolSize))
	return &Decoder{
		rq:  rq,
		dec: rq.CreateDecoder(uint32(oti.TransferLength)),
		oti: oti,
	}
}

// Feed submits one received symbol. When the object becomes fully
// decodable, it returns the reconstructed gossip frame and ok=true.
func (d *Decoder) Feed(esi uint32, symbol []byte) (frame []byte, ok bool, err error) {
	decoded, err := d.dec.AddSymbol(raptorq.Symbol{ID: esi, Data: symbol})
	if err != nil {
		return nil, false, errors.Wrap(err, "fec: decoder rejected symbol")
	}

	if decoded == nil {
		return nil, false, nil
	}

	return decoded, true, nil
}
