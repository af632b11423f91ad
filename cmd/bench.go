// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/layerbd/layerbd/pkg/debug"
	"github.com/layerbd/layerbd/pkg/objio"
	"github.com/layerbd/layerbd/pkg/objmap"
	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/volume"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(benchCmd)
	f := benchCmd.Flags()
	f.String("backend", "memory", "Backend type: memory, local, or s3")
	f.String("dir", "", "Data directory for the local backend")
	f.String("bucket", "", "Bucket for the s3 backend")
	f.String("region", "us-east-1", "Region for the s3 backend")
	f.String("endpoint", "", "Endpoint override for the s3 backend")
	f.String("access_key", "", "Access key for the s3 backend")
	f.String("secret_key", "", "Secret key for the s3 backend")
	f.Uint64("size", 64<<20, "Volume size in bytes")
	f.Uint64("object_size", types.DefaultObjectSize, "Object size in bytes")
	f.Int("workers", 4, "Backend worker goroutines")
	f.Int("ops", 1024, "Number of I/O operations against the clone")
	f.Int("io_size", 64<<10, "Bytes per operation")
	f.Bool("copy_on_read", true, "Materialize parent data on read")
	f.String("objmap_dir", "", "LevelDB directory for the existence index (empty = in-memory)")
	f.String("debug_addr", "", "Serve /metrics and pprof on this address")
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a clone I/O workload against a backend",
	Long: `bench seeds a parent volume, snapshots it, clones it, and then runs a
mixed read/write workload against the clone. Reads of unwritten objects
fall back to the parent; writes trigger copy-up materialization.`,
	RunE: runBench,
}

func runBench(cmd *cobra.Command, args []string) error {
	fl := NewFlagLoader(cmd)

	backend, err := store.New(store.BackendConfig{
		Type:      store.BackendType(fl.String("backend")),
		Workers:   fl.Int("workers"),
		Dir:       fl.String("dir"),
		Bucket:    fl.String("bucket"),
		Region:    fl.String("region"),
		Endpoint:  fl.String("endpoint"),
		AccessKey: fl.String("access_key"),
		SecretKey: fl.String("secret_key"),
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	if addr := fl.String("debug_addr"); addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, debug.GetMux()); err != nil {
				log.Error().Err(err).Msg("Debug server failed")
			}
		}()
	}

	size := fl.Uint64("size")
	objectSize := fl.Uint64("object_size")
	ioSize := uint64(fl.Int("io_size"))
	layout := types.Layout{ObjectSize: objectSize, StripeUnit: objectSize, StripeCount: 1}

	parent, err := volume.New(volume.Config{
		Name:    "bench-parent",
		Size:    size,
		Layout:  layout,
		Backend: backend,
	})
	if err != nil {
		return err
	}
	defer parent.Close()

	// Seed every parent object so clone reads have something to fall
	// back to.
	payload := make([]byte, objectSize)
	for i := range payload {
		payload[i] = byte(rand.Uint32())
	}
	for objectNo := uint64(0); objectNo < parent.ObjectCount(); objectNo++ {
		if r := awaitWrite(parent, objectNo, 0, payload); r < 0 {
			return fmt.Errorf("seed object %d: %w", objectNo, types.ResultError(r))
		}
	}
	parent.AddSnapshot(1, "base")

	var mapStore objmap.Store = objmap.NewMemoryStore()
	if dir := fl.String("objmap_dir"); dir != "" {
		mapStore, err = objmap.OpenLevelDBStore(dir)
		if err != nil {
			return err
		}
	}
	om, err := objmap.Open(mapStore, size/objectSize)
	if err != nil {
		return err
	}

	clone, err := volume.New(volume.Config{
		Name:       "bench-clone",
		Size:       size,
		Layout:     layout,
		Backend:    backend,
		ObjectMap:  om,
		CopyOnRead: fl.Bool("copy_on_read"),
	})
	if err != nil {
		return err
	}
	defer clone.Close()
	clone.SetParent(parent, size)

	ops := fl.Int("ops")
	buf := make([]byte, ioSize)
	var moved uint64
	start := time.Now()
	for i := 0; i < ops; i++ {
		objectNo := rand.Uint64N(clone.ObjectCount())
		off := uint64(0)
		if objectSize > ioSize {
			off = rand.Uint64N(objectSize - ioSize)
		}
		var r int
		if i%2 == 0 {
			r = awaitWrite(clone, objectNo, off, buf)
		} else {
			r = awaitRead(clone, objectNo, off, ioSize)
		}
		if r < 0 {
			return fmt.Errorf("op %d on object %d: %w", i, objectNo, types.ResultError(r))
		}
		moved += ioSize
	}
	elapsed := time.Since(start)

	rate := uint64(float64(moved) / elapsed.Seconds())
	fmt.Printf("%d ops, %s in %s (%s/s)\n",
		ops, humanize.IBytes(moved), elapsed.Round(time.Millisecond), humanize.IBytes(rate))
	return nil
}

func awaitWrite(v *volume.Volume, objectNo, off uint64, data []byte) int {
	ch := make(chan int, 1)
	w := objio.NewWriteRequest(v, objectNo, off, data, store.NewCompletion(func(r int) { ch <- r }))
	v.OwnerLock.RLock()
	w.Send()
	v.OwnerLock.RUnlock()
	return <-ch
}

func awaitRead(v *volume.Volume, objectNo, off, length uint64) int {
	ch := make(chan int, 1)
	r := objio.NewReadRequest(v, objectNo, off, length, types.NoSnap, objio.ReadConfig{}, store.NewCompletion(func(res int) { ch <- res }))
	r.Send()
	return <-ch
}
