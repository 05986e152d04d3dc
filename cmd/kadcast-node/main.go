// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Command kadcast-node runs a standalone Kadcast peer: it joins the
// overlay, logs every reassembled broadcast it receives, and optionally
// re-broadcasts lines read from stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-network/kadcast"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "kadcast-node",
		Usage: "run a standalone Kadcast overlay peer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a kadcast config file (yaml/json/toml), layered over built-in defaults",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "override listen_address, e.g. 0.0.0.0:7100",
			},
			&cli.StringSliceFlag{
				Name:  "bootstrap",
				Usage: "bootstrap node address (host:port); may be repeated",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "broadcast-stdin",
				Usage: "broadcast each line read from stdin as a gossip frame",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("kadcast-node exited with error")
	}
}

func run(c *cli.Context) error {
	if c.Bool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := kadcast.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := kadcast.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if listen := c.String("listen"); listen != "" {
		cfg.ListenAddress = listen
	}
	if bootstrap := c.StringSlice("bootstrap"); len(bootstrap) > 0 {
		cfg.BootstrapNodes = bootstrap
	}

	peer, err := kadcast.New(cfg)
	if err != nil {
		return err
	}
	defer peer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	peer.Start(ctx)

	logrus.WithField("self", peer.Self().String()).Info("kadcast-node started")

	go logMessages(ctx, peer)
	go logPeerEvents(ctx, peer)

	if c.Bool("broadcast-stdin") {
		go broadcastStdin(ctx, peer)
	}

	<-ctx.Done()
	logrus.Info("kadcast-node shutting down")
	return nil
}

func logMessages(ctx context.Context, peer *kadcast.Peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-peer.Messages():
			logrus.WithField("sender", msg.Sender.String()).
				WithField("bytes", len(msg.Payload)).
				Info("received broadcast")
		}
	}
}

func logPeerEvents(ctx context.Context, peer *kadcast.Peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-peer.PeerEvents():
			kind := "discovered"
			if ev.Kind == kadcast.PeerEvicted {
				kind = "evicted"
			}
			logrus.WithField("peer", ev.Peer.String()).Debug(fmt.Sprintf("peer %s", kind))
		}
	}
}

func broadcastStdin(ctx context.Context, peer *kadcast.Peer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := peer.Broadcast(scanner.Bytes()); err != nil {
			logrus.WithError(err).Warn("broadcast failed")
		}
	}
}
