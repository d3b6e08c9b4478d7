package api

import (
	"sync"
)

// analysisLimiter tracks in-flight on-demand coverage analyses per IP and
// globally. Each analysis propagates the whole constellation over the
// requested window, so a handful of concurrent requests can saturate the
// host; excess requests are rejected rather than queued.
type analysisLimiter struct {
	mu       sync.Mutex
	inflight map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newAnalysisLimiter(maxPerIP, maxTotal int) *analysisLimiter {
	if maxPerIP <= 0 {
		maxPerIP = 2
	}
	if maxTotal <= 0 {
		maxTotal = 8
	}
	return &analysisLimiter{
		inflight: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire attempts to register a new analysis for the given IP.
// Returns false if the IP or global limit has been reached.
func (l *analysisLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return false
	}
	if l.inflight[ip] >= l.maxPerIP {
		return false
	}

	l.inflight[ip]++
	l.total++
	return true
}

// release decrements the analysis count for the given IP.
func (l *analysisLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inflight[ip]--
	l.total--
	if l.inflight[ip] <= 0 {
		delete(l.inflight, ip)
	}
}

// count returns the number of in-flight analyses for the given IP.
func (l *analysisLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[ip]
}
