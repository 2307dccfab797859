// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/seam-foundation/seam/reconcile"
	"github.com/seam-foundation/seam/store"
)

// callTimeout bounds the store round-trips made by one command.
const callTimeout = 10 * time.Second

// storeFlags carries the connection options shared by every command
// that talks to the store.
type storeFlags struct {
	addr      string
	keyPrefix string
	json      bool
}

// register binds the shared flags onto flagSet. The store address
// defaults from $SEAM_STORE_ADDR so operators configure it once per
// shell instead of per command.
func (f *storeFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.addr, "store-addr", defaultStoreAddr(), "store address (host:port)")
	flagSet.StringVar(&f.keyPrefix, "key-prefix", "seam", "store key namespace")
	flagSet.BoolVar(&f.json, "json", false, "output as JSON")
}

func defaultStoreAddr() string {
	if addr := os.Getenv("SEAM_STORE_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// connect opens the store client and builds a queue over it. The
// queue is the CLI's whole interface to reconciler state: read and
// operator paths only, no worker runs in-process.
func (f *storeFlags) connect() (*store.Client, *reconcile.Queue, error) {
	client, err := store.New(store.Config{Addr: f.addr})
	if err != nil {
		return nil, nil, err
	}
	queue, err := reconcile.NewQueue(reconcile.QueueConfig{
		Store:     client,
		KeyPrefix: f.keyPrefix,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, queue, nil
}

// callContext bounds a command's store calls.
func callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}
