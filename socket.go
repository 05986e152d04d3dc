// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var socketLog = logrus.WithField("process", "kadcast-socket")

type outboundDatagram struct {
	addr    *net.UDPAddr
	payload []byte
}

type inboundDatagram struct {
	addr    *net.UDPAddr
	payload []byte
}

// Socket owns the single UDP listener shared by the reader and writer,
// with bounded send/receive queues decoupling the network from the
// processing goroutines.
type Socket struct {
	conn *net.UDPConn
	mtu  int

	sendBackoff time.Duration
	outbound    chan outboundDatagram
}

// NewSocket binds a UDP listener at listenAddr and tunes its kernel
// buffers per cfg.
func NewSocket(listenAddr string, cfg NetworkConfig, outboundCapacity int) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrFatal, listenAddr, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", ErrFatal, listenAddr, err)
	}

	if err := conn.SetReadBuffer(cfg.UDPRecvBufferSize); err != nil {
		socketLog.WithError(err).Warn("failed to set read buffer size")
	}
	if err := conn.SetWriteBuffer(cfg.UDPSendBufferSize); err != nil {
		socketLog.WithError(err).Warn("failed to set write buffer size")
	}

	return &Socket{
		conn:        conn,
		mtu:         cfg.MTU,
		sendBackoff: cfg.UDPSendBackoff,
		outbound:    make(chan outboundDatagram, outboundCapacity),
	}, nil
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the underlying file descriptor.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Enqueue schedules payload for delivery to addr. It never blocks: when
// the outbound queue is full the newest datagram is dropped, matching
// Kadcast's fire-and-forget delivery semantics.
func (s *Socket) Enqueue(addr *net.UDPAddr, payload []byte) bool {
	select {
	case s.outbound <- outboundDatagram{addr: addr, payload: payload}:
		return true
	default:
		socketLog.WithField("addr", addr.String()).Warn("outbound queue full, dropping datagram")
		return false
	}
}

// RunSender drains the outbound queue until ctx is cancelled, pacing at
// most one datagram per sendBackoff so a burst of broadcasts doesn't
// saturate the local uplink.
func (s *Socket) RunSender(ctx context.Context) {
	var tick <-chan time.Time
	if s.sendBackoff > 0 {
		ticker := time.NewTicker(s.sendBackoff)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		}

		select {
		case <-ctx.Done():
			return
		case d := <-s.outbound:
			if _, err := s.conn.WriteToUDP(d.payload, d.addr); err != nil {
				socketLog.WithError(err).WithField("addr", d.addr.String()).Debug("udp write failed")
			}
		}
	}
}

// RunReceiver reads datagrams until ctx is cancelled, forwarding each to
// inbound. Datagrams arriving while inbound is full are dropped rather
// than stalling the read loop.
func (s *Socket) RunReceiver(ctx context.Context, inbound chan<- inboundDatagram) {
	buf := make([]byte, s.mtu)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			socketLog.WithError(err).Debug("udp read error")
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case inbound <- inboundDatagram{addr: addr, payload: payload}:
		default:
			socketLog.Warn("inbound queue full, dropping datagram")
		}
	}
}
