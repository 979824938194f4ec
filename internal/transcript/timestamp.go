package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTimestamp accepts "MM:SS" or "HH:MM:SS" (minutes may exceed 59) and
// returns seconds.
func ParseTimestamp(ts string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", ts)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad timestamp %q", ts)
		}
		total = total*60 + v
	}
	return total, nil
}

// FormatTimestamp renders seconds as MM:SS with unbounded minutes.
func FormatTimestamp(seconds float64) string {
	s := int(seconds + 0.5)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// offsetChunkTurns moves chunk-local timestamps onto the full-recording
// timeline. chunk holds each turn's 1-based chunk number (0 when unknown) and
// starts the start second of each chunk. A timestamp already at or past its
// chunk's start is left alone.
func offsetChunkTurns(turns []Turn, chunk []int, starts []float64) {
	for i := range turns {
		k := chunk[i]
		if k < 2 || k > len(starts) {
			continue
		}
		sec, err := ParseTimestamp(turns[i].Timestamp)
		if err != nil {
			continue
		}
		start := starts[k-1]
		if sec < start {
			turns[i].Timestamp = FormatTimestamp(sec + start)
		}
	}
}
