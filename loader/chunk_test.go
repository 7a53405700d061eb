package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPlanChunks_Priorities(t *testing.T) {
	chunks := PlanChunks(15*DefaultChunkSize+100, DefaultChunkSize)
	require.Len(t, chunks, 16)

	for i, c := range chunks {
		switch {
		case i < 3:
			assert.Equal(t, ChunkHigh, c.Priority, "chunk %d", i)
		case i > 10:
			assert.Equal(t, ChunkLow, c.Priority, "chunk %d", i)
		default:
			assert.Equal(t, ChunkMedium, c.Priority, "chunk %d", i)
		}
	}
	assert.Equal(t, int64(100), chunks[15].Length)
	assert.Equal(t, "bytes=0-262143", chunks[0].RangeHeader())
}

func TestPlanChunks_Empty(t *testing.T) {
	assert.Nil(t, PlanChunks(0, DefaultChunkSize))
	assert.Len(t, PlanChunks(10, 0), 1)
}

func TestDispatchOrder_HighBeforeLow(t *testing.T) {
	chunks := PlanChunks(20, 1)
	// 打乱优先级以验证排序不依赖下标
	chunks[0].Priority = ChunkLow
	chunks[19].Priority = ChunkHigh

	order := dispatchOrder(chunks)
	require.Len(t, order, 20)
	for i := 1; i < len(order); i++ {
		assert.LessOrEqual(t, chunks[order[i-1]].Priority, chunks[order[i]].Priority)
	}
	assert.Equal(t, []int{1, 2, 19}, order[:3])
	assert.Equal(t, 0, order[11], "first low-priority chunk after all medium ones")
}

func TestAssemble_Errors(t *testing.T) {
	chunks := PlanChunks(10, 4)
	for i := range chunks {
		chunks[i].Data = make([]byte, chunks[i].Length)
		chunks[i].Loaded = true
	}

	_, err := Assemble(chunks, 10)
	require.NoError(t, err)

	chunks[1].Loaded = false
	_, err = Assemble(chunks, 10)
	assert.ErrorIs(t, err, ErrAssembly)
	chunks[1].Loaded = true

	chunks[2].Data = chunks[2].Data[:1]
	_, err = Assemble(chunks, 10)
	assert.ErrorIs(t, err, ErrAssembly)
	chunks[2].Data = make([]byte, chunks[2].Length)

	_, err = Assemble(chunks, 11)
	assert.ErrorIs(t, err, ErrAssembly)
}

// TestProperty_Chunks_PartitionAndAssemble 分块恰好覆盖 [0,total)，组装后每个字节来自覆盖它的分块
func TestProperty_Chunks_PartitionAndAssemble(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.Int64Range(1, 1<<16).Draw(rt, "total")
		size := rapid.Int64Range(1, 1<<14).Draw(rt, "size")

		src := make([]byte, total)
		for i := range src {
			src[i] = byte(i*31 + 7)
		}

		chunks := PlanChunks(total, size)
		var next, sum int64
		for i := range chunks {
			c := &chunks[i]
			require.Equal(rt, next, c.Offset, "no gaps or overlaps")
			require.Positive(rt, c.Length)
			require.LessOrEqual(rt, c.Length, size)
			next = c.End()
			sum += c.Length

			c.Data = src[c.Offset:c.End()]
			c.Loaded = true
		}
		require.Equal(rt, total, next)
		require.Equal(rt, total, sum)

		out, err := Assemble(chunks, total)
		require.NoError(rt, err)
		require.Equal(rt, int(sum), len(out))
		require.Equal(rt, src, out)
	})
}
