package persist

import (
	"context"
	"sync"
	"time"

	"report-intake-pipeline/metrics"
	"report-intake-pipeline/models"

	"github.com/apex/log"
)

// Dispatcher is a fixed pool of workers draining a bounded queue into a
// Saver. Record never blocks: when the queue is full the record is dropped
// and counted.
type Dispatcher struct {
	saver       Saver
	queue       chan models.DecisionRecord
	saveTimeout time.Duration
	wg          sync.WaitGroup
	mu          sync.RWMutex
	stopped     bool
}

// NewDispatcher starts workers goroutines reading from a queue of
// queueSize records.
func NewDispatcher(saver Saver, workers, queueSize int, saveTimeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	d := &Dispatcher{
		saver:       saver,
		queue:       make(chan models.DecisionRecord, queueSize),
		saveTimeout: saveTimeout,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	log.Infof("Started %d persistence workers (queue size %d, saver %s)", workers, queueSize, saver.Name())
	return d
}

func (d *Dispatcher) Record(record models.DecisionRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		metrics.PersistDroppedTotal.Inc()
		log.WithField("report_id", record.ReportID).Warn("persistence stopped, dropping decision")
		return
	}
	select {
	case d.queue <- record:
		metrics.PersistQueueDepth.Inc()
	default:
		metrics.PersistDroppedTotal.Inc()
		log.WithField("report_id", record.ReportID).Warn("persistence queue full, dropping decision")
	}
}

// Stop closes the queue and waits for queued records to be saved or for ctx
// to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for record := range d.queue {
		metrics.PersistQueueDepth.Dec()
		d.save(record)
	}
}

func (d *Dispatcher) save(record models.DecisionRecord) {
	ctx := context.Background()
	if d.saveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.saveTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("report_id", record.ReportID).Errorf("panic while saving decision: %v", r)
		}
	}()
	if err := d.saver.Save(ctx, record); err != nil {
		metrics.PersistErrorsTotal.WithLabelValues(d.saver.Name()).Inc()
		log.WithError(err).WithField("report_id", record.ReportID).Warn("decision not persisted")
	}
}
