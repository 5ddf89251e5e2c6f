package async

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/creditreport-extractor/internal/pipeline"
)

type recordingRunner struct {
	mu         sync.Mutex
	processed  []uuid.UUID
	reextracts []uuid.UUID
	delay      time.Duration
}

func (r *recordingRunner) Process(_ context.Context, id uuid.UUID, _ []byte) (pipeline.Outcome, error) {
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, id)
	return pipeline.Outcome{DocumentID: id, Success: true}, nil
}

func (r *recordingRunner) Reextract(_ context.Context, id uuid.UUID, _ []byte) (pipeline.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reextracts = append(r.reextracts, id)
	return pipeline.Outcome{DocumentID: id, Success: true}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessorQueue_DrainsOnShutdown(t *testing.T) {
	r := &recordingRunner{delay: 5 * time.Millisecond}
	q := NewProcessorQueue(r, quietLogger(), WithWorkers(2), WithQueueSize(1))

	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: ids[i]}))
	}
	redo := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: redo, Reextract: true}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ElementsMatch(t, ids, r.processed)
	assert.Equal(t, []uuid.UUID{redo}, r.reextracts)
}

func TestProcessorQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&recordingRunner{}, quietLogger())
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{DocumentID: uuid.New()})
	assert.ErrorIs(t, err, ErrQueueClosed)
}
