// =============================================================================
// 🎬 场景模拟 - 质量控制器测试用的材质、节点与资源
// =============================================================================
// 记录每个 setter 的调用次数，便于断言重复应用同一等级不产生写入
//
// 使用方法:
//
//	asset := mocks.NewMockAsset("chair", quality.Vec3{Z: 10}).
//		WithMaterial(0.3, 0.8, true).
//		WithNode(0.2)
//	controller.Register(asset)
// =============================================================================
package mocks

import (
	"sync"

	"github.com/BaSui01/assetflow/device"
	"github.com/BaSui01/assetflow/quality"
)

// =============================================================================
// 🎯 MockMaterial
// =============================================================================

// MockMaterial 是 quality.Material 的模拟实现
type MockMaterial struct {
	mu        sync.Mutex
	roughness float64
	metalness float64
	detail    bool
	writes    int
}

// NewMockMaterial 创建材质
func NewMockMaterial(roughness, metalness float64, detail bool) *MockMaterial {
	return &MockMaterial{roughness: roughness, metalness: metalness, detail: detail}
}

func (m *MockMaterial) Roughness() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roughness
}

func (m *MockMaterial) SetRoughness(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roughness = v
	m.writes++
}

func (m *MockMaterial) Metalness() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metalness
}

func (m *MockMaterial) SetMetalness(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metalness = v
	m.writes++
}

func (m *MockMaterial) DetailMaps() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detail
}

func (m *MockMaterial) SetDetailMaps(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detail = enabled
	m.writes++
}

// Writes 返回 setter 调用总次数
func (m *MockMaterial) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// =============================================================================
// 🎯 MockNode
// =============================================================================

// MockNode 是 quality.Node 的模拟实现
type MockNode struct {
	mu      sync.Mutex
	radius  float64
	visible bool
	writes  int
}

// NewMockNode 创建可见节点
func NewMockNode(radius float64) *MockNode {
	return &MockNode{radius: radius, visible: true}
}

func (n *MockNode) BoundingRadius() float64 { return n.radius }

func (n *MockNode) Visible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visible
}

func (n *MockNode) SetVisible(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = v
	n.writes++
}

// Writes 返回 SetVisible 调用次数
func (n *MockNode) Writes() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writes
}

// =============================================================================
// 🎯 MockAsset
// =============================================================================

// MockAsset 是 quality.Asset 的模拟实现
type MockAsset struct {
	mu        sync.Mutex
	id        string
	position  quality.Vec3
	materials []*MockMaterial
	nodes     []*MockNode
}

// NewMockAsset 创建资源
func NewMockAsset(id string, position quality.Vec3) *MockAsset {
	return &MockAsset{id: id, position: position}
}

// WithMaterial 添加材质
func (a *MockAsset) WithMaterial(roughness, metalness float64, detail bool) *MockAsset {
	a.materials = append(a.materials, NewMockMaterial(roughness, metalness, detail))
	return a
}

// WithNode 添加节点
func (a *MockAsset) WithNode(radius float64) *MockAsset {
	a.nodes = append(a.nodes, NewMockNode(radius))
	return a
}

// MoveTo 修改位置
func (a *MockAsset) MoveTo(p quality.Vec3) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = p
}

func (a *MockAsset) ID() string { return a.id }

func (a *MockAsset) Position() quality.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

func (a *MockAsset) Materials() []quality.Material {
	out := make([]quality.Material, len(a.materials))
	for i, m := range a.materials {
		out[i] = m
	}
	return out
}

func (a *MockAsset) Nodes() []quality.Node {
	out := make([]quality.Node, len(a.nodes))
	for i, n := range a.nodes {
		out[i] = n
	}
	return out
}

// MockMaterials 具体类型的材质列表
func (a *MockAsset) MockMaterials() []*MockMaterial { return a.materials }

// MockNodes 具体类型的节点列表
func (a *MockAsset) MockNodes() []*MockNode { return a.nodes }

// Writes 所有材质与节点的写入次数之和
func (a *MockAsset) Writes() int {
	total := 0
	for _, m := range a.materials {
		total += m.Writes()
	}
	for _, n := range a.nodes {
		total += n.Writes()
	}
	return total
}

// =============================================================================
// 🎯 MockRenderStats
// =============================================================================

// MockRenderStats 是 quality.RenderStatsSource 的模拟实现
type MockRenderStats struct {
	mu    sync.Mutex
	stats quality.RenderStats
	calls int
}

// NewMockRenderStats 创建渲染统计来源
func NewMockRenderStats(drawCalls, triangles int) *MockRenderStats {
	return &MockRenderStats{stats: quality.RenderStats{DrawCalls: drawCalls, TriangleCount: triangles}}
}

// WithMemoryMB 设置显存占用
func (s *MockRenderStats) WithMemoryMB(mb float64) *MockRenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.MemoryUsageMB = device.Some(mb)
	return s
}

// Set 替换统计
func (s *MockRenderStats) Set(stats quality.RenderStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func (s *MockRenderStats) RenderStats() quality.RenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.stats
}

// Calls 返回 RenderStats 调用次数
func (s *MockRenderStats) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
