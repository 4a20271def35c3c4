package fanout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pool runs a fixed number of workers over a bounded job queue. It is used
// for independent conversion jobs such as one job per input file.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	jobs    chan T
	metrics *poolMetrics
	wg      sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	stopCh      chan struct{}

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

type poolMetrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option configures a Pool.
type Option[T any] func(*poolConfig)

type poolConfig struct {
	registerer prometheus.Registerer
	prefix     string
}

// WithRegisterer registers the pool metrics under prefix.
func WithRegisterer[T any](reg prometheus.Registerer, prefix string) Option[T] {
	return func(c *poolConfig) {
		c.registerer = reg
		c.prefix = prefix
	}
}

// NewPool creates a pool. Non-positive sizes fall back to DefaultWorkers and
// a queue of 1000.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	var cfg poolConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		jobs:      make(chan T, queueSize),
		stopCh:    make(chan struct{}),
	}
	if cfg.registerer != nil && cfg.prefix != "" {
		p.metrics = newPoolMetrics(cfg.registerer, cfg.prefix)
	}
	return p
}

func newPoolMetrics(reg prometheus.Registerer, prefix string) *poolMetrics {
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Current job queue depth",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Total jobs submitted",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_processed_total",
			Help: "Total jobs processed",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_failed_total",
			Help: "Total jobs that returned an error",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Total jobs rejected because the queue was full",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Time spent processing jobs",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"status"}),
	}
	m.queueDepth = register(reg, m.queueDepth)
	m.submitted = register(reg, m.submitted)
	m.processed = register(reg, m.processed)
	m.failed = register(reg, m.failed)
	m.dropped = register(reg, m.dropped)
	m.processingTime = register(reg, m.processingTime)
	return m
}

// Submit enqueues a job without blocking. It returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool[T]) Submit(job T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if err := p.acceptingLocked(); err != nil {
		return err
	}
	select {
	case p.jobs <- job:
		p.recordSubmit()
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// SubmitWait enqueues a job, waiting for queue space until ctx is done or the
// pool stops.
func (p *Pool[T]) SubmitWait(ctx context.Context, job T) error {
	p.lifecycleMu.Lock()
	if err := p.acceptingLocked(); err != nil {
		p.lifecycleMu.Unlock()
		return err
	}
	p.lifecycleMu.Unlock()

	select {
	case p.jobs <- job:
		p.recordSubmit()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return ErrPoolStopped
	}
}

func (p *Pool[T]) acceptingLocked() error {
	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	return nil
}

func (p *Pool[T]) recordSubmit() {
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.jobs)))
	}
}

// Start launches the workers. They exit when ctx is cancelled or the pool stops.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Stop stops accepting jobs, lets the workers drain the queue and waits up
// to timeout for them to finish.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.jobs),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.process(ctx, job)
		case <-p.stopCh:
			// Drain what was queued before Stop.
			for {
				select {
				case job := <-p.jobs:
					p.process(ctx, job)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, job T) {
	start := time.Now()
	err := p.processor(ctx, job)
	duration := time.Since(start)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}
	if p.metrics != nil {
		p.metrics.processed.Inc()
		status := "success"
		if err != nil {
			p.metrics.failed.Inc()
			status = "error"
		}
		p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
		p.metrics.queueDepth.Set(float64(len(p.jobs)))
	}
}
