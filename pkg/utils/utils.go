// Package utils 通用小工具，不依赖 internal
package utils

// CoalesceString 返回第一个非空字符串
func CoalesceString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// Number 可取默认值的数值类型
type Number interface {
	~int | ~int64 | ~float64
}

// PositiveOr v>0 时返回 v，否则返回 defaultVal
func PositiveOr[T Number](v, defaultVal T) T {
	if v > 0 {
		return v
	}
	return defaultVal
}
