package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	n := 1000
	hits := make([]int32, n)
	For(n, func(i int) {
		atomic.AddInt32(&hits[i], 1)
	}, cfg)

	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
}

func TestForBatch(t *testing.T) {
	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, func(b, c int) {
		results[b][c] = true
	}, DefaultConfig())

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			assert.True(t, results[b][c], "missing result at [%d][%d]", b, c)
		}
	}
}

func TestForRange_Sequential(t *testing.T) {
	var calls int
	ForRange(100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 100, end)
	}, Sequential())

	assert.Equal(t, 1, calls)
}

func TestForRange_SmallInputStaysOnCaller(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 8, MinChunkSize: 16}

	var chunks int32
	ForRange(20, func(_, _ int) {
		atomic.AddInt32(&chunks, 1)
	}, cfg)

	assert.Equal(t, int32(1), chunks)
}

func TestForRange_ChunksCoverRange(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}

	var total int64
	ForRange(10, func(start, end int) {
		atomic.AddInt64(&total, int64(end-start))
	}, cfg)

	assert.Equal(t, int64(10), total)
}

func TestFor_Empty(t *testing.T) {
	For(0, func(_ int) {
		t.Fatal("must not be called")
	}, DefaultConfig())
}
