// Package statsd ships counters and histograms to a StatsD endpoint, at a
// configurable interval or flushed eagerly (spec §6 "Statsd"). Grounded on
// _examples/original_source/main/lsp/LSPLoop.cc's shouldSendCountersToStatsd
// / sendCountersToStatsd pair: a default 5-minute batching interval,
// overridable to flush eagerly, prefixing every metric name with a
// configured prefix before submission. No package in the retrieval pack
// implements the StatsD line protocol itself, so the wire format
// (`name:value|c` / `name:value|h` over UDP) is implemented directly
// against net/encoding per DESIGN.md.
package statsd

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultInterval matches the original's STATSD_INTERVAL.
const DefaultInterval = 5 * time.Minute

// Client batches counters and histograms and periodically (or on demand)
// ships them to a StatsD UDP endpoint.
type Client struct {
	addr     string
	prefix   string
	interval time.Duration

	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string][]float64
	lastFlush  time.Time

	conn net.Conn // nil if addr is empty: metrics are tracked but never sent
}

// New returns a Client submitting to addr ("host:port") with every metric
// name prefixed by prefix. addr == "" disables network submission (metrics
// are still counted, matching the original's "counters always accumulate;
// statsdHost merely gates whether they're ever sent").
func New(addr, prefix string, interval time.Duration) (*Client, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Client{
		addr:       addr,
		prefix:     prefix,
		interval:   interval,
		counters:   map[string]int64{},
		histograms: map[string][]float64{},
	}
	if addr != "" {
		conn, err := net.Dial("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("statsd: dial %s: %w", addr, err)
		}
		c.conn = conn
	}
	return c, nil
}

// Count increments name by delta.
func (c *Client) Count(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
}

// Histogram records one observation of value under name.
func (c *Client) Histogram(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms[name] = append(c.histograms[name], value)
}

// ShouldFlush reports whether interval has elapsed since the last flush,
// the direct Go counterpart of shouldSendCountersToStatsd (web-trace-style
// eager flushing is modeled by callers simply calling Flush directly
// instead of consulting ShouldFlush).
func (c *Client) ShouldFlush(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && now.Sub(c.lastFlush) > c.interval
}

// Flush submits every accumulated counter and histogram and resets the
// accumulators, matching sendCountersToStatsd's "submit then the counters
// implicitly start fresh for the next interval" behavior. Flush is a no-op
// if no endpoint was configured.
func (c *Client) Flush(now time.Time) error {
	c.mu.Lock()
	counters := c.counters
	histograms := c.histograms
	c.counters = map[string]int64{}
	c.histograms = map[string][]float64{}
	c.lastFlush = now
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	var lines []string
	for name, v := range counters {
		lines = append(lines, fmt.Sprintf("%s.%s:%d|c", c.prefix, name, v))
	}
	for name, values := range histograms {
		for _, v := range values {
			lines = append(lines, fmt.Sprintf("%s.%s:%g|h", c.prefix, name, v))
		}
	}
	if len(lines) == 0 {
		return nil
	}
	_, err := conn.Write([]byte(strings.Join(lines, "\n")))
	return err
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
