package types

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// DisplaySize formats a byte count with the largest unit whose scaled value
// is at least 1, rounded to one decimal. Trailing ".0" is dropped. Counts of
// 1024 GB and above stay in GB.
func DisplaySize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	value = math.Round(value*10) / 10
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[unit]
}
