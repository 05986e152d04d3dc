// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dusk-network/kadcast/peer"
	"github.com/spf13/viper"
)

// KadcastInitialHeight is the default initial height for the Kadcast
// broadcast algorithm: one hop per bucket, bucket count many hops deep.
const KadcastInitialHeight byte = peer.NumBuckets

// Alpha is the recursive-lookup parallelism.
const Alpha = 3

// Beta is the default broadcast fan-out per bucket.
const Beta = 3

// BucketConfig configures the routing table.
type BucketConfig struct {
	// K is the per-bucket capacity.
	K int
	// MinPeers is the live-peer floor below which the table is
	// considered to need bootstrap.
	MinPeers int
	// NodeTTL (T_peer_idle) is how long a peer may go untouched before
	// the maintainer PINGs it.
	NodeTTL time.Duration
	// NodeEvictAfter (T_evict) bounds how long a pending-eviction PING
	// waits for a PONG before promoting the candidate.
	NodeEvictAfter time.Duration
	// BucketTTL (T_idle) is how long a bucket may go untouched before
	// the maintainer schedules a refresh lookup into it.
	BucketTTL time.Duration
}

// NetworkConfig configures the UDP transport.
type NetworkConfig struct {
	// MTU bounds datagram size; must be within [1296, 8192].
	MTU int
	// UDPSendBackoff paces the outbound send loop.
	UDPSendBackoff time.Duration
	// SendRetryInterval is accepted in configuration but not read: the
	// writer never retries or waits, and Socket.Enqueue drops the newest
	// datagram at once when the outbound channel is full.
	SendRetryInterval time.Duration
	UDPRecvBufferSize int
	UDPSendBufferSize int
}

// FecConfig configures the RaptorQ encoder.
type FecConfig struct {
	Enabled                  bool
	MinRepairPacketsPerBlock int
	RedundancyFactor         float64
}

// RaptorCacheConfig configures ChunkCache TTLs.
type RaptorCacheConfig struct {
	MaxTTL        time.Duration
	ProcessedTTL  time.Duration
	PendingTTL    time.Duration
	PruneInterval time.Duration
}

// ChannelConfig bounds the internal channel capacities.
type ChannelConfig struct {
	InboundCapacity      int
	OutboundCapacity     int
	NotificationCapacity int
}

// Config is the full Peer configuration.
type Config struct {
	PublicAddress   string
	ListenAddress   string
	BootstrapNodes  []string
	NetworkID       byte
	Version         string
	PoWDifficulty   uint

	Bucket       BucketConfig
	Network      NetworkConfig
	Fec          FecConfig
	RaptorCache  RaptorCacheConfig
	Channel      ChannelConfig

	AutoPropagate bool
	Blocklist     []string

	MaintenanceInterval time.Duration
	QueryTimeout        time.Duration
	AliveThreshold      time.Duration
}

// DefaultConfig returns defaults satisfying
// T_evict < T_idle < T_peer_idle << T_cache. ListenAddress is left empty,
// so Validate rejects the result until a listen address is set.
func DefaultConfig() Config {
	return Config{
		NetworkID:     0,
		Version:       "0.1.0",
		PoWDifficulty: 8,

		Bucket: BucketConfig{
			K:              20,
			MinPeers:       4,
			NodeTTL:        10 * time.Minute,
			NodeEvictAfter: 5 * time.Second,
			BucketTTL:      1 * time.Minute,
		},
		Network: NetworkConfig{
			MTU:               1500,
			UDPSendBackoff:    2 * time.Millisecond,
			SendRetryInterval: time.Second,
			UDPRecvBufferSize: 1 << 20,
			UDPSendBufferSize: 1 << 20,
		},
		Fec: FecConfig{
			Enabled:                  true,
			MinRepairPacketsPerBlock: 2,
			RedundancyFactor:         0.15,
		},
		RaptorCache: RaptorCacheConfig{
			MaxTTL:        24 * time.Hour,
			ProcessedTTL:  10 * time.Minute,
			PendingTTL:    30 * time.Second,
			PruneInterval: 10 * time.Second,
		},
		Channel: ChannelConfig{
			InboundCapacity:      5000,
			OutboundCapacity:     5000,
			NotificationCapacity: 1000,
		},
		AutoPropagate:       true,
		MaintenanceInterval: 20 * time.Second,
		QueryTimeout:        3 * time.Second,
		AliveThreshold:      2 * time.Minute,
	}
}

// LoadConfig reads a Config via viper from the given file path (and
// environment overrides under the KADCAST_ prefix), layered on top of
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KADCAST")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("kadcast: failed to read config %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("kadcast: failed to parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks configuration invariants, surfaced at Peer
// construction time.
func (c Config) Validate() error {
	if c.Network.MTU < 1296 || c.Network.MTU > 8192 {
		return fmt.Errorf("%w: mtu %d out of range [1296, 8192]", ErrConfiguration, c.Network.MTU)
	}

	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("%w: invalid listen_address %q: %v", ErrConfiguration, c.ListenAddress, err)
	}

	if c.PublicAddress != "" {
		if _, _, err := net.SplitHostPort(c.PublicAddress); err != nil {
			return fmt.Errorf("%w: invalid public_address %q: %v", ErrConfiguration, c.PublicAddress, err)
		}
	}

	if c.Bucket.K <= 0 {
		return fmt.Errorf("%w: bucket.k must be positive", ErrConfiguration)
	}

	if c.Bucket.NodeEvictAfter >= c.Bucket.BucketTTL || c.Bucket.BucketTTL >= c.Bucket.NodeTTL {
		return fmt.Errorf("%w: timeouts must satisfy T_evict < T_idle < T_peer_idle", ErrConfiguration)
	}

	return nil
}

// VersionCompatible reports whether a peer advertising the given remote
// version string is wire-compatible with this node, per semver: same
// major component, any minor/patch.
func (c Config) VersionCompatible(remote string) bool {
	return majorVersion(c.Version) == majorVersion(remote)
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

// blocked reports whether ip matches an entry in Blocklist. An entry
// containing "/" is parsed as a CIDR; otherwise it is matched as an
// exact IP.
func (c Config) blocked(ip net.IP) bool {
	for _, entry := range c.Blocklist {
		if strings.Contains(entry, "/") {
			if _, ipNet, err := net.ParseCIDR(entry); err == nil && ipNet.Contains(ip) {
				return true
			}
			continue
		}
		if blocked := net.ParseIP(entry); blocked != nil && blocked.Equal(ip) {
			return true
		}
	}
	return false
}
