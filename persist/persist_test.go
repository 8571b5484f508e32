package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"report-intake-pipeline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSaver struct{ err error }

func (f failingSaver) Name() string { return "failing" }

func (f failingSaver) Save(context.Context, models.DecisionRecord) error { return f.err }

// blockingSaver blocks every Save until release is closed.
type blockingSaver struct {
	release chan struct{}
	mu      sync.Mutex
	saved   int
}

func (b *blockingSaver) Name() string { return "blocking" }

func (b *blockingSaver) Save(ctx context.Context, _ models.DecisionRecord) error {
	<-b.release
	b.mu.Lock()
	b.saved++
	b.mu.Unlock()
	return nil
}

type panicSaver struct{}

func (panicSaver) Name() string { return "panic" }

func (panicSaver) Save(context.Context, models.DecisionRecord) error { panic("boom") }

func record(id string) models.DecisionRecord {
	return models.DecisionRecord{ReportID: id, Status: models.StatusAccepted}
}

func TestMultiSaverTriesAll(t *testing.T) {
	mem := NewMemorySaver()
	boom := errors.New("db down")
	m := MultiSaver{failingSaver{err: boom}, mem, LogSaver{}}

	err := m.Save(context.Background(), record("r1"))
	assert.ErrorIs(t, err, boom)
	require.Len(t, mem.Records(), 1)
	assert.Equal(t, "r1", mem.Records()[0].ReportID)
}

func TestSyncRecorderSwallowsErrors(t *testing.T) {
	assert.NotPanics(t, func() {
		NewSyncRecorder(failingSaver{err: errors.New("nope")}).Record(record("r1"))
	})
}

func TestDispatcherSavesEverything(t *testing.T) {
	mem := NewMemorySaver()
	d := NewDispatcher(mem, 4, 100, time.Second)

	for i := 0; i < 50; i++ {
		d.Record(record(fmt.Sprintf("r%d", i)))
	}
	require.NoError(t, d.Stop(context.Background()))
	assert.Len(t, mem.Records(), 50)

	d.Record(record("late"))
	assert.Len(t, mem.Records(), 50)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	saver := &blockingSaver{release: make(chan struct{})}
	d := NewDispatcher(saver, 1, 1, 0)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Record(record(fmt.Sprintf("r%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(saver.release)
	require.NoError(t, d.Stop(context.Background()))

	saver.mu.Lock()
	defer saver.mu.Unlock()
	assert.GreaterOrEqual(t, saver.saved, 1)
	assert.LessOrEqual(t, saver.saved, 2)
}

func TestDispatcherStopHonoursContext(t *testing.T) {
	saver := &blockingSaver{release: make(chan struct{})}
	d := NewDispatcher(saver, 1, 4, 0)
	d.Record(record("r1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
	close(saver.release)
}

func TestDispatcherSurvivesPanics(t *testing.T) {
	d := NewDispatcher(panicSaver{}, 1, 4, 0)
	d.Record(record("r1"))
	d.Record(record("r2"))
	assert.NoError(t, d.Stop(context.Background()))
}
