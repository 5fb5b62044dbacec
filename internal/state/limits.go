package state

import "math"

// baseBodySizeLimit and baseSigopsLimit are the month-zero limits from
// spec.md §4.4.1.
const (
	baseBodySizeLimit = 8 * 1024 * 1024
	baseSigopsLimit   = 42800

	// blocksPerMonth assumes one block per 10 minutes: 6 per hour, 24
	// hours, 30 days.
	blocksPerMonth = 6 * 24 * 30
	// maxMonth caps the growth factor at month=120 (~8 MiB * 111).
	maxMonth = 120

	growthRate = 1.04
)

func monthAt(height uint32) int {
	month := int(height) / blocksPerMonth
	if month > maxMonth {
		month = maxMonth
	}
	return month
}

// bodySizeLimit is the maximum serialized body size permitted at height h:
// 8 MiB * 1.04^month, floored to an integer.
func bodySizeLimit(height uint32) int {
	return int(baseBodySizeLimit * math.Pow(growthRate, float64(monthAt(height))))
}

// bodySigopsLimit is the maximum number of flattened authorizations
// permitted at height h: 42800 * 1.04^month, floored to an integer.
func bodySigopsLimit(height uint32) int {
	return int(baseSigopsLimit * math.Pow(growthRate, float64(monthAt(height))))
}
