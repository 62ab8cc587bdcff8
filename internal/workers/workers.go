// Package workers computes worker pool sizes for the background decode and
// thumbnail pipelines. Sizing is based on GOMAXPROCS rather than
// runtime.NumCPU so container CPU limits are respected, with an optional
// VIEWER_WORKERS environment override for operators.
package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns a worker count for a task type. The multiplier adjusts for
// task characteristics (1.0 CPU-bound, 2.0 I/O-bound, 1.5 mixed) and limit
// caps the result (0 = uncapped). The VIEWER_WORKERS environment variable,
// when set to a positive integer, overrides the computed value but is still
// capped by limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("VIEWER_WORKERS"); override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			if limit > 0 && n > limit {
				return limit
			}
			return n
		}
	}

	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU returns a worker count for CPU-bound tasks such as image decode.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns a worker count for I/O-bound tasks such as directory scans.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns a worker count for mixed tasks such as thumbnail
// generation (read file, decode, downscale, store).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
