// Command pagereport-demo stands up a simulated buddy allocator, attaches
// the page-reporting subsystem, fans out concurrent "allocator thread"
// traffic, and prints scan-cycle statistics as they occur. With
// -transport=quic it also stands up a real internal/collector instance and
// ships reported extents to it over internal/balloon's QUIC client,
// exercising the full reference reporter path end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmguest/pagereporting/internal/balloon"
	"github.com/vmguest/pagereporting/internal/buddy"
	"github.com/vmguest/pagereporting/internal/collector"
	"github.com/vmguest/pagereporting/internal/pagereport"
)

func main() {
	var (
		zoneCount int
		threads   int
		freesEach int
		hwm       int
		maxBatch  int
		minOrder  int
		coalesce  time.Duration
		transport string
	)

	flag.IntVar(&zoneCount, "zones", 1, "number of simulated zones")
	flag.IntVar(&threads, "threads", 4, "number of concurrent simulated allocator threads")
	flag.IntVar(&freesEach, "frees", 200, "pages each thread frees")
	flag.IntVar(&hwm, "hwm", 32, "unreported-page high-water mark per order")
	flag.IntVar(&maxBatch, "max-batch", 16, "maximum pages per react call")
	flag.IntVar(&minOrder, "min-order", 9, "smallest order eligible for reporting")
	flag.DurationVar(&coalesce, "coalesce", 50*time.Millisecond, "coalescing delay before a scan cycle starts")
	flag.StringVar(&transport, "transport", "inproc", "reporter transport: inproc|quic")
	flag.Parse()

	logger := log.New(os.Stdout, "pagereport-demo: ", log.LstdFlags)

	zones := make([]*buddy.Zone, zoneCount)
	for i := range zones {
		zones[i] = buddy.NewZone(fmt.Sprintf("zone%d", i), uint64(i)<<32, uint64(i+1)<<32)
	}

	ctrl := pagereport.NewController(zones,
		pagereport.WithMinOrder(minOrder),
		pagereport.WithHWM(hwm),
		pagereport.WithMaxBatch(maxBatch),
		pagereport.WithCoalesceDelay(coalesce),
		pagereport.WithLogger(logger),
	)
	defer ctrl.Close()

	var reactCalls, reportedPages int64

	device := &pagereport.Device{
		Capacity: maxBatch,
		React: func(b *pagereport.Batch) {
			atomic.AddInt64(&reactCalls, 1)
			atomic.AddInt64(&reportedPages, int64(b.Len()))
			logger.Printf("react: %d pages", b.Len())
		},
	}

	if transport == "quic" {
		teardown, err := wireQUICTransport(device, logger)
		if err != nil {
			logger.Fatalf("quic transport: %v", err)
		}

		defer teardown()
	}

	if err := ctrl.Startup(device, nil); err != nil {
		logger.Fatalf("startup: %v", err)
	}

	defer ctrl.Shutdown()

	start := time.Now()

	g, _ := errgroup.WithContext(context.Background())

	for t := 0; t < threads; t++ {
		t := t
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(t) + 1))

			span := buddy.MaxOrder - minOrder + 1
			if span < 1 {
				span = 1
			}

			for i := 0; i < freesEach; i++ {
				zone := zones[rng.Intn(len(zones))]
				order := minOrder + rng.Intn(span)
				pfn := uint64(t)<<40 | uint64(i)<<uint(order)
				zone.Seed(pfn, order, buddy.Movable)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("allocator threads: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Refcnt() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	logger.Printf("done: %d react calls, %d pages reported, refcnt=%d, elapsed=%s",
		atomic.LoadInt64(&reactCalls), atomic.LoadInt64(&reportedPages), ctrl.Refcnt(), time.Since(start))
}

// wireQUICTransport stands up an embedded collector.Server and rewires
// device.React to ship every batch to it over internal/balloon's QUIC
// client, returning a teardown func.
func wireQUICTransport(device *pagereport.Device, logger *log.Logger) (func(), error) {
	tlsConf, err := collector.GenerateTLSConfig()
	if err != nil {
		return nil, err
	}

	srv := collector.NewServer("127.0.0.1:0", tlsConf, func(_ net.Addr, e collector.Extent) {
		logger.Printf("collector: received pfn=%d order=%d", e.PFN, e.Order)
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	serveErr := make(chan error, 1)

	go func() { serveErr <- srv.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	addr := srv.Addr()
	if addr == nil {
		cancel()

		return nil, fmt.Errorf("collector did not start listening")
	}

	client := balloon.NewClient(addr.String(), balloon.InsecureClientTLSConfig(), logger)

	inner := device.React
	device.React = func(b *pagereport.Batch) {
		inner(b)
		client.React(b)
	}

	return func() {
		_ = client.Close()
		cancel()
	}, nil
}
