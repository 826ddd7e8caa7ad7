package stream

import "sync"

// maxStreams caps concurrent streams across all clients.
const maxStreams = 1000

// streamLimiter counts open streams per client IP and in total.
type streamLimiter struct {
	mu       sync.Mutex
	open     map[string]int
	total    int
	maxPerIP int
}

func newStreamLimiter(maxPerIP int) *streamLimiter {
	return &streamLimiter{open: make(map[string]int), maxPerIP: maxPerIP}
}

// acquire reserves a slot for ip, reporting false when ip or the server is at
// its limit.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total >= maxStreams || l.open[ip] >= l.maxPerIP {
		return false
	}
	l.open[ip]++
	l.total++
	return true
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open[ip] <= 1 {
		delete(l.open, ip)
	} else {
		l.open[ip]--
	}
	l.total--
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[ip]
}
