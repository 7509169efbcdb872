// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pivd/lib/client"
	"github.com/bureau-foundation/pivd/lib/config"
	"github.com/bureau-foundation/pivd/lib/process"
	"github.com/bureau-foundation/pivd/lib/protocol"
	"github.com/bureau-foundation/pivd/lib/token"
	"github.com/bureau-foundation/pivd/lib/version"
)

// keyTypeTag is prepended to raw 32-byte points.
const keyTypeTag = 0x05

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		stop()
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		socketPath  string
		timeout     time.Duration
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("pivd-call", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&socketPath, "socket", config.Default().SocketPath, "pivd socket path")
	flagSet.DurationVar(&timeout, "timeout", client.DefaultTimeout, "give up after this long")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(stdout, "Usage: pivd-call [flags] <R1|R2> <hexkey>\n\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Fprintf(stdout, "pivd-call %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() != 2 {
		return fmt.Errorf("expected <R1|R2> <hexkey>, got %d arguments", flagSet.NArg())
	}

	slot, err := token.ParseSlot(flagSet.Arg(0))
	if err != nil {
		return err
	}
	peerKey, err := parsePeerKey(flagSet.Arg(1))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	agreement, err := client.New(socketPath).CalculateAgreement(ctx, slot, peerKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hex.EncodeToString(agreement))
	return nil
}

// parsePeerKey decodes a tagged 33-byte key, or a raw 32-byte point
// which it tags.
func parsePeerKey(encoded string) ([]byte, error) {
	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("peer key: %w", err)
	}
	switch len(key) {
	case protocol.PeerKeySize:
		return key, nil
	case token.PointSize:
		return append([]byte{keyTypeTag}, key...), nil
	default:
		return nil, fmt.Errorf("peer key must be %d or %d bytes, got %d", protocol.PeerKeySize, token.PointSize, len(key))
	}
}
