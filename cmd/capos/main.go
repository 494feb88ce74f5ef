package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/caps"
	"github.com/GriffinCanCode/CapOS/internal/config"
	"github.com/GriffinCanCode/CapOS/internal/kernel/sim"
	"github.com/GriffinCanCode/CapOS/internal/logging"
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/monitoring"
	"github.com/GriffinCanCode/CapOS/internal/server"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}
	defer logger.Sync()

	regions := config.DefaultRegions()
	if cfg.Heap.LayoutPath != "" {
		regions, err = config.LoadRegions(cfg.Heap.LayoutPath)
		if err != nil {
			logger.Fatal("Failed to load heap layout", zap.Error(err))
		}
	}

	metrics := monitoring.NewMetrics()
	heap := memory.NewRegionHeap(regions, logger).WithMetrics(metrics)
	kern := sim.New(cfg.Kernel.Cores, logger).WithMetrics(metrics)
	lifecycle := caps.New(kern, heap, logger).WithMetrics(metrics)

	logger.Info("CapOS kernel up",
		zap.Int("cores", cfg.Kernel.Cores),
		zap.Int("regions", len(regions)),
	)

	runDemo(lifecycle, kern, logger)

	srv := server.New(kern, heap, metrics, logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	if err := srv.Run(ctx, addr); err != nil {
		logger.Error("Inspector stopped", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// runDemo exercises the lifecycle layer: a producer and a consumer task in
// DMA-capable memory exchanging through a capability-backed queue, the
// consumer forwarding each item into a capability-backed stream buffer and
// both tasks self-deleting when the stream ends.
func runDemo(lifecycle *caps.Lifecycle, kern *sim.Kernel, logger *logging.Logger) {
	queue, err := lifecycle.CreateQueue(8, 4, types.CapInternal|types.CapDMA)
	if err != nil {
		logger.Fatal("Failed to create demo queue", zap.Error(err))
	}

	stream, err := lifecycle.CreateStreamBuffer(64, 1, types.CapInternal)
	if err != nil {
		logger.Fatal("Failed to create demo stream buffer", zap.Error(err))
	}

	done, err := lifecycle.CreateEventGroup(types.CapInternal)
	if err != nil {
		logger.Fatal("Failed to create demo event group", zap.Error(err))
	}
	const producerDone = sim.EventBits(1)

	producer, err := lifecycle.CreateTask(func() {
		for i := 0; i < 16; i++ {
			item := []byte{byte(i), 0, 0, 0}
			kern.QueueSend(queue, item, time.Second)
			kern.Yield()
		}
		kern.EventGroupSet(done, producerDone)
		lifecycle.DeleteTask(0) // terminal; self-delete never returns
	}, "demo_producer", 2048, 5, types.NoAffinity, types.CapInternal|types.CapDMA)
	if err != nil {
		logger.Fatal("Failed to create producer", zap.Error(err))
	}

	consumer, err := lifecycle.CreateTask(func() {
		buf := make([]byte, 4)
		for kern.QueueReceive(queue, buf, 250*time.Millisecond) {
			kern.StreamBufferSend(stream, buf[:1], time.Second)
			kern.Yield()
		}
		lifecycle.DeleteTask(0)
	}, "demo_consumer", 2048, 5, types.NoAffinity, types.CapInternal|types.CapDMA)
	if err != nil {
		logger.Fatal("Failed to create consumer", zap.Error(err))
	}

	logger.Info("Demo workload started",
		zap.Uint64("producer", uint64(producer)),
		zap.Uint64("consumer", uint64(consumer)),
	)

	go func() {
		kern.EventGroupWait(done, producerDone, true, false, 30*time.Second)
		kern.WaitTaskExit(producer)
		kern.WaitTaskExit(consumer)

		drained := 0
		sink := make([]byte, 16)
		for {
			n := kern.StreamBufferReceive(stream, sink, 50*time.Millisecond)
			if n == 0 {
				break
			}
			drained += n
		}

		lifecycle.DeleteQueue(queue)
		lifecycle.DeleteStreamBuffer(stream)
		lifecycle.DeleteEventGroup(done)
		logger.Info("Demo workload drained", zap.Int("bytes", drained))
	}()
}
