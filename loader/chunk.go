package loader

import (
	"fmt"
	"sort"
)

// DefaultChunkSize 流式加载的分块大小
const DefaultChunkSize = 256 << 10

// ChunkPriority 分块优先级
type ChunkPriority int

const (
	ChunkHigh ChunkPriority = iota
	ChunkMedium
	ChunkLow
)

func (p ChunkPriority) String() string {
	switch p {
	case ChunkHigh:
		return "high"
	case ChunkMedium:
		return "medium"
	default:
		return "low"
	}
}

// Chunk 资源的一个字节区间
type Chunk struct {
	ID       int
	Offset   int64
	Length   int64
	Priority ChunkPriority
	Loaded   bool
	Data     []byte
}

// End 区间末尾（不含）
func (c Chunk) End() int64 { return c.Offset + c.Length }

// RangeHeader 对应的 Range 请求头
func (c Chunk) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", c.Offset, c.End()-1)
}

// chunkPriority 前 3 块为 high，索引大于 10 为 low
func chunkPriority(idx int) ChunkPriority {
	switch {
	case idx < 3:
		return ChunkHigh
	case idx > 10:
		return ChunkLow
	default:
		return ChunkMedium
	}
}

// PlanChunks 将 [0,total) 无缝隙、无重叠地切分为 size 大小的分块
func PlanChunks(total, size int64) []Chunk {
	if total <= 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	n := int((total + size - 1) / size)
	chunks := make([]Chunk, n)
	for i := range chunks {
		off := int64(i) * size
		chunks[i] = Chunk{
			ID:       i,
			Offset:   off,
			Length:   min(size, total-off),
			Priority: chunkPriority(i),
		}
	}
	return chunks
}

// dispatchOrder 按优先级排列的分块下标，同优先级按偏移
func dispatchOrder(chunks []Chunk) []int {
	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return chunks[order[a]].Priority < chunks[order[b]].Priority
	})
	return order
}

// Assemble 按偏移组装所有分块。任一分块未加载或长度不符都返回 ErrAssembly。
func Assemble(chunks []Chunk, total int64) ([]byte, error) {
	var sum int64
	for _, c := range chunks {
		if !c.Loaded {
			return nil, fmt.Errorf("%w: chunk %d not loaded", ErrAssembly, c.ID)
		}
		if int64(len(c.Data)) != c.Length {
			return nil, fmt.Errorf("%w: chunk %d has %d bytes, want %d", ErrAssembly, c.ID, len(c.Data), c.Length)
		}
		if c.Offset != sum {
			return nil, fmt.Errorf("%w: chunk %d at offset %d, want %d", ErrAssembly, c.ID, c.Offset, sum)
		}
		sum += c.Length
	}
	if sum != total {
		return nil, fmt.Errorf("%w: assembled %d bytes, probed %d", ErrAssembly, sum, total)
	}

	buf := make([]byte, total)
	for _, c := range chunks {
		copy(buf[c.Offset:], c.Data)
	}
	return buf, nil
}
