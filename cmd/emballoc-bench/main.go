// Command emballoc-bench compares pool allocation against the native Go
// allocator over a configurable churn workload and prints per-path
// throughput and latency percentiles.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"
	"unsafe"

	"github.com/orizon-lang/emballoc/mempool"
)

type result struct {
	name  string
	iters int
	total time.Duration
	p50   time.Duration
	p99   time.Duration
}

func main() {
	iters := flag.Int("iters", 200000, "allocate/free pairs per run")
	live := flag.Int("live", 64, "live allocations held between frees")
	perClass := flag.Uint64("blocks", 256, "pool blocks configured per size class")
	threadsafe := flag.Bool("threadsafe", false, "create the pool with locking enabled")
	seed := flag.Int64("seed", 1, "workload seed")
	flag.Parse()

	var counts [mempool.NumClasses]uint64
	for i := range counts {
		counts[i] = *perClass
	}
	pool := mempool.Create(mempool.Settings{
		BlockCounts: counts,
		Threadsafe:  *threadsafe,
	})
	if pool == nil {
		fmt.Fprintln(os.Stderr, "pool creation failed")
		os.Exit(1)
	}
	defer pool.Destroy()

	sizes := workloadSizes(*iters, *seed)

	poolRes := runPool(pool, sizes, *live)
	nativeRes := runNative(sizes, *live)

	fmt.Printf("%-10s %10s %14s %12s %12s\n", "path", "iters", "ops/sec", "p50", "p99")
	for _, r := range []result{poolRes, nativeRes} {
		opsPerSec := float64(r.iters) / r.total.Seconds()
		fmt.Printf("%-10s %10d %14.0f %12s %12s\n", r.name, r.iters, opsPerSec, r.p50, r.p99)
	}

	stats := pool.Snapshot()
	fmt.Printf("\npool: %d allocs, %d frees, %d failed, %d corruption events\n",
		stats.Allocs, stats.Frees, stats.FailedAllocs, stats.CorruptionEvents)
}

// workloadSizes draws request sizes skewed toward the small classes, the
// mix fixed pools are usually deployed for.
func workloadSizes(n int, seed int64) []uint64 {
	rng := rand.New(rand.NewSource(seed))
	sizes := make([]uint64, n)
	for i := range sizes {
		switch rng.Intn(10) {
		case 0:
			sizes[i] = 1 + uint64(rng.Intn(4096))
		case 1, 2:
			sizes[i] = 1 + uint64(rng.Intn(512))
		default:
			sizes[i] = 1 + uint64(rng.Intn(128))
		}
	}
	return sizes
}

func runPool(pool *mempool.Pool, sizes []uint64, live int) result {
	lat := make([]time.Duration, 0, len(sizes))
	ring := make([]unsafe.Pointer, live)
	start := time.Now()
	for i, s := range sizes {
		t0 := time.Now()
		ptr := pool.Alloc(s)
		lat = append(lat, time.Since(t0))
		slot := i % live
		if ring[slot] != nil {
			pool.Free(ring[slot])
		}
		ring[slot] = ptr
	}
	for _, ptr := range ring {
		pool.Free(ptr)
	}
	return summarize("pool", len(sizes), time.Since(start), lat)
}

func runNative(sizes []uint64, live int) result {
	lat := make([]time.Duration, 0, len(sizes))
	ring := make([][]byte, live)
	start := time.Now()
	for i, s := range sizes {
		t0 := time.Now()
		buf := make([]byte, s)
		lat = append(lat, time.Since(t0))
		ring[i%live] = buf
	}
	return summarize("native", len(sizes), time.Since(start), lat)
}

func summarize(name string, iters int, total time.Duration, lat []time.Duration) result {
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	pick := func(q float64) time.Duration {
		if len(lat) == 0 {
			return 0
		}
		idx := int(q * float64(len(lat)-1))
		return lat[idx]
	}
	return result{name: name, iters: iters, total: total, p50: pick(0.50), p99: pick(0.99)}
}
