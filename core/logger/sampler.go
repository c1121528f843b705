package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets through n out of every d events. A zero ratio lets everything through.
type sampler struct {
	ratio   atomic.Uint64 // n<<32 | d
	counter atomic.Uint64
}

func (s *sampler) set(n, d int) {
	if n <= 0 || d <= 0 {
		s.ratio.Store(0)
		return
	}
	n = min(n, d)
	s.ratio.Store(uint64(n)<<32 | uint64(d))
	s.counter.Store(0)
}

func (s *sampler) allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	n, d := r>>32, r&0xffffffff
	return (s.counter.Add(1)-1)%d < n
}

// parseRatio accepts "n/d" or "d" (meaning 1/d). ok is false for junk.
func parseRatio(raw string) (n, d int, ok bool) {
	raw = strings.TrimSpace(raw)
	if num, den, found := strings.Cut(raw, "/"); found {
		a, err1 := strconv.Atoi(strings.TrimSpace(num))
		b, err2 := strconv.Atoi(strings.TrimSpace(den))
		return a, b, err1 == nil && err2 == nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, 0, false
	}
	if v <= 0 {
		return 0, 0, true
	}
	return 1, v, true
}
