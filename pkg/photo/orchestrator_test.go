package photo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sources(t *testing.T, n int) []Source {
	t.Helper()
	out := make([]Source, n)
	for i := range out {
		out[i] = pngSource(t, fmt.Sprintf("photo-%d.png", i), createTestImage(64, 48))
	}
	return out
}

func TestAddFiles_EightIntoEmptyBatch(t *testing.T) {
	o := NewOrchestrator(newTestNormalizer(t, nil))
	b := NewBatch(6, 3, nil)

	report, err := o.AddFiles(context.Background(), b, sources(t, 8))
	require.NoError(t, err)

	assert.Len(t, report.Added, 6)
	assert.Equal(t, 2, report.Dropped)
	assert.True(t, report.LimitReached)
	assert.ErrorIs(t, report.Err(), ErrCapacityExceeded)
	assert.Contains(t, report.Err().Error(), "maximum 6 photos")
	assert.True(t, report.Ready)
	assert.Equal(t, 6, b.Len())

	// The first six of the selection are the ones kept, in order.
	for i, p := range b.Photos() {
		assert.Equal(t, fmt.Sprintf("photo-%d.png", i), p.Name)
	}
	assert.True(t, b.Photos()[0].IsCover)

	processed, failed := o.Stats()
	assert.Equal(t, 6, processed)
	assert.Equal(t, 0, failed)
}

func TestAddFiles_PartiallyFilledBatch(t *testing.T) {
	o := NewOrchestrator(newTestNormalizer(t, nil))
	b := NewBatch(6, 3, nil)
	b.Append(fakePhoto("a"), fakePhoto("b"), fakePhoto("c"), fakePhoto("d"))

	report, err := o.AddFiles(context.Background(), b, sources(t, 5))
	require.NoError(t, err)
	assert.Len(t, report.Added, 2)
	assert.Equal(t, 3, report.Dropped)
	assert.Equal(t, 6, b.Len())
}

func TestAddFiles_BadFileDoesNotAbortBatch(t *testing.T) {
	o := NewOrchestrator(newTestNormalizer(t, nil))
	b := NewBatch(6, 3, nil)

	srcs := sources(t, 3)
	srcs = append(srcs[:1], append([]Source{{Name: "corrupt.jpg", ContentType: "image/jpeg", Data: []byte("garbage")}}, srcs[1:]...)...)

	report, err := o.AddFiles(context.Background(), b, srcs)
	require.NoError(t, err)

	assert.Len(t, report.Added, 3)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "corrupt.jpg", report.Failed[0].Name)
	assert.True(t, IsFileError(report.Failed[0].Err))
	assert.False(t, report.LimitReached)
	assert.NoError(t, report.Err())
	assert.True(t, report.Ready)

	_, failed := o.Stats()
	assert.Equal(t, 1, failed)
}

func TestAddFiles_OversizedFileDoesNotAbortBatch(t *testing.T) {
	o := NewOrchestrator(newTestNormalizer(t, nil))
	b := NewBatch(6, 3, nil)

	srcs := append(sources(t, 2), declaredPNG(t, "huge.png", 60000, 60000))
	srcs = append(srcs, sources(t, 1)...)

	report, err := o.AddFiles(context.Background(), b, srcs)
	require.NoError(t, err)

	assert.Len(t, report.Added, 3)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "huge.png", report.Failed[0].Name)
	assert.True(t, IsFileError(report.Failed[0].Err))
	assert.Equal(t, 3, b.Len())
	assert.True(t, report.Ready)
}

func TestAddFiles_ShortfallReported(t *testing.T) {
	o := NewOrchestrator(newTestNormalizer(t, nil))
	b := NewBatch(6, 3, nil)

	report, err := o.AddFiles(context.Background(), b, sources(t, 1))
	require.NoError(t, err)
	assert.False(t, report.Ready)
	assert.Equal(t, 2, report.Shortfall)
}

func TestAddFiles_CanceledContext(t *testing.T) {
	o := NewOrchestrator(newTestNormalizer(t, nil))
	b := NewBatch(6, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var statuses []string
	o.OnProgress(func(p Progress) {
		mu.Lock()
		statuses = append(statuses, p.Status)
		mu.Unlock()
		if p.Status == StatusDone {
			cancel() // stop after the first file
		}
	})

	report, err := o.AddFiles(ctx, b, sources(t, 4))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Added, 1)
	assert.Equal(t, 1, b.Len(), "work finished before cancellation is kept")
	assert.Equal(t, []string{StatusDone}, statuses)
}

func TestAddFiles_ProgressIncludesDropped(t *testing.T) {
	o := NewOrchestrator(newTestNormalizer(t, nil))
	b := NewBatch(2, 1, nil)

	var got []Progress
	o.OnProgress(func(p Progress) { got = append(got, p) })

	_, err := o.AddFiles(context.Background(), b, sources(t, 3))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, StatusDropped, got[0].Status)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, StatusDone, got[1].Status)
	assert.Equal(t, StatusDone, got[2].Status)
	assert.NotEmpty(t, got[1].PhotoID)
}

func TestAddFiles_NoPipeline(t *testing.T) {
	var o *Orchestrator
	_, err := o.AddFiles(context.Background(), NewBatch(6, 3, nil), sources(t, 1))
	assert.ErrorIs(t, err, ErrPipelineUnavailable)
}
