package quality

import "math"

// Vec3 三维坐标
type Vec3 struct {
	X, Y, Z float64
}

// Distance 两点间欧氏距离
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Material 可调整表面属性的材质
type Material interface {
	Roughness() float64
	SetRoughness(v float64)
	Metalness() float64
	SetMetalness(v float64)
	// DetailMaps 法线、AO 等细节贴图是否启用
	DetailMaps() bool
	SetDetailMaps(enabled bool)
}

// Node 场景中的子对象
type Node interface {
	BoundingRadius() float64
	Visible() bool
	SetVisible(visible bool)
}

// Asset 已加载并交给渲染器的资源
type Asset interface {
	ID() string
	Position() Vec3
	Materials() []Material
	Nodes() []Node
}
