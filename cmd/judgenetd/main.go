// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/logging"
	"github.com/judgenet/node/metrics"
	"github.com/judgenet/node/node"
	"github.com/judgenet/node/store"
)

var rootCmd = &cobra.Command{
	Use:   "judgenetd",
	Short: "judgenet peer-to-peer judgment replication node",
	Long: `judgenetd runs one node of the judgment replication network:
it gossips signed judgments to its peers, runs BFT consensus over
block proposals, and tracks each peer's reputation via its E-Score.`,
}

func main() {
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start a node and block until terminated",
		RunE:  runNode,
	}
	cmd.Flags().String("listen", ":7946", "address to accept peer connections on")
	cmd.Flags().StringSlice("seed", nil, "seed peer address (wss://host:port), repeatable")
	cmd.Flags().String("snapshot-file", "", "path to a JSON chain snapshot; empty keeps the snapshot in-memory only")
	cmd.Flags().Duration("slot-duration", 400*time.Millisecond, "slot duration")
	cmd.Flags().Int("finality-depth", 3, "confirmations required to finalize a block")
	cmd.Flags().String("log-level", "info", "debug, info, warn, or error")
	return cmd
}

func runNode(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	seeds, _ := cmd.Flags().GetStringSlice("seed")
	snapshotFile, _ := cmd.Flags().GetString("snapshot-file")
	slotDuration, _ := cmd.Flags().GetDuration("slot-duration")
	finalityDepth, _ := cmd.Flags().GetInt("finality-depth")
	logLevel, _ := cmd.Flags().GetString("log-level")

	log, err := logging.New("judgenetd", logLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}

	var backend store.Backend
	if snapshotFile != "" {
		backend = store.NewFileBackend(snapshotFile)
	} else {
		backend = store.NewMemoryBackend()
	}

	reg := prometheus.NewRegistry()
	n := node.New(node.Config{
		Keypair:       kp,
		ListenAddress: listen,
		SeedPeers:     seeds,
		SlotDuration:  slotDuration,
		FinalityDepth: finalityDepth,
		Backend:       backend,
		Logger:        log,
		Metrics:       metrics.New(reg),
	})

	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	n.Stop()
	return nil
}
