package quality

import (
	"errors"
	"fmt"

	"github.com/BaSui01/assetflow/device"
)

// ErrInvalidLevels 等级表不合法
var ErrInvalidLevels = errors.New("invalid quality levels")

// Level 一个细节等级。索引越大质量越低。
type Level struct {
	DistanceThreshold float64 `json:"distance_threshold" yaml:"distance_threshold"`
	// QualityFactor 取值 (0,1]，1 表示原始质量
	QualityFactor float64 `json:"quality_factor" yaml:"quality_factor"`
}

// Levels 按距离阈值严格递增排列的等级表
type Levels []Level

// LevelsFromPolicy 从设备策略构造等级表
func LevelsFromPolicy(specs []device.LevelSpec) (Levels, error) {
	levels := make(Levels, len(specs))
	for i, s := range specs {
		levels[i] = Level{DistanceThreshold: s.Distance, QualityFactor: s.Quality}
	}
	if err := levels.Validate(); err != nil {
		return nil, err
	}
	return levels, nil
}

// Validate 检查等级表：非空、阈值严格递增、质量系数在 (0,1] 且 0 级为 1
func (ls Levels) Validate() error {
	if len(ls) == 0 {
		return fmt.Errorf("%w: no levels", ErrInvalidLevels)
	}
	if ls[0].QualityFactor != 1 {
		return fmt.Errorf("%w: level 0 must have quality 1, got %v", ErrInvalidLevels, ls[0].QualityFactor)
	}
	for i, l := range ls {
		if l.QualityFactor <= 0 || l.QualityFactor > 1 {
			return fmt.Errorf("%w: level %d quality %v out of (0,1]", ErrInvalidLevels, i, l.QualityFactor)
		}
		if i > 0 && l.DistanceThreshold <= ls[i-1].DistanceThreshold {
			return fmt.Errorf("%w: level %d threshold %v not above %v",
				ErrInvalidLevels, i, l.DistanceThreshold, ls[i-1].DistanceThreshold)
		}
	}
	return nil
}

// Select 返回首个阈值 ≥ distance 的等级，没有匹配时返回最后一级
func (ls Levels) Select(distance float64) int {
	for i, l := range ls {
		if l.DistanceThreshold >= distance {
			return i
		}
	}
	return len(ls) - 1
}

// Quality 等级的质量系数，越界时按最近的等级处理
func (ls Levels) Quality(level int) float64 {
	if len(ls) == 0 {
		return 1
	}
	if level < 0 {
		level = 0
	}
	if level >= len(ls) {
		level = len(ls) - 1
	}
	return ls[level].QualityFactor
}
