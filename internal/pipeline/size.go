package pipeline

import (
	"fmt"
	"math"
)

var sizeUnits = [...]string{"B", "kB", "MB", "GB", "TB"}

// FormatBytes renders size in base-1024 units with two decimals, picking the
// largest unit whose scaled value is at least 1. Zero and negative sizes
// render as "0 B".
func FormatBytes(size int64) string {
	if size <= 0 {
		return "0 " + sizeUnits[0]
	}

	unit := 0
	for scaled := size; scaled >= 1024 && unit < len(sizeUnits)-1; scaled /= 1024 {
		unit++
	}

	value := float64(size) / math.Pow(1024, float64(unit))
	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}
