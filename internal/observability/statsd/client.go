// Package statsd emits metrics over UDP in the DogStatsD line format.
//
// Lines are packed into datagrams of at most MaxPacketSize bytes. A datagram is sent when
// the next line would not fit, on every FlushInterval, and on Close.
package statsd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxPacketSize = 1432 // fits one Ethernet frame with IPv6 and UDP headers
	defaultFlushInterval = time.Second
)

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
	// MaxPacketSize caps one datagram. Defaults to 1432 bytes.
	MaxPacketSize int
	// FlushInterval bounds how long a line waits in the buffer. Defaults to 1s.
	FlushInterval time.Duration
}

// Client buffers metric lines and writes them as UDP datagrams.
// It is safe for concurrent use; a nil *Client discards everything.
type Client struct {
	prefix     string
	globalTags string
	maxPacket  int
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
	buf  bytes.Buffer

	stop chan struct{}
	done chan struct{}
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured StatsD endpoint unless disabled. A disabled client is
// returned without error and drops every metric.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPacket := cfg.MaxPacketSize
	if maxPacket <= 0 {
		maxPacket = defaultMaxPacketSize
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	c := &Client{
		prefix:     sanitizePrefix(cfg.Prefix),
		globalTags: formatTags(cfg.GlobalTags, nil),
		maxPacket:  maxPacket,
		logger:     logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.flushLoop(interval)
	return c, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.add(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.add(name, formatFloat(value), "g", tags)
}

// Timing records a timing metric in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.add(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Flush sends any buffered lines now.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Close flushes the buffer, stops the flush loop and releases the connection.
// Further metrics are dropped. Close may be called more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.flushLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return conn.Close()
}

func (c *Client) flushLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

func (c *Client) add(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.metricName(name)
	if metric == "" {
		return
	}
	line := metric + ":" + value + "|" + kind + mergeTags(c.globalTags, formatTags(tags, nil))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if c.buf.Len() > 0 && c.buf.Len()+1+len(line) > c.maxPacket {
		c.flushLocked()
	}
	if c.buf.Len() > 0 {
		c.buf.WriteByte('\n')
	}
	c.buf.WriteString(line)
	// a single oversized line still goes out on its own
	if c.buf.Len() >= c.maxPacket {
		c.flushLocked()
	}
}

func (c *Client) flushLocked() {
	if c.buf.Len() == 0 || c.conn == nil {
		return
	}
	if _, err := c.conn.Write(c.buf.Bytes()); err != nil {
		c.logger.Debug("statsd write failed", "error", err, "bytes", c.buf.Len())
	}
	c.buf.Reset()
}

func (c *Client) metricName(name string) string {
	normalized := normalizeMetricName(name)
	if normalized == "" {
		return ""
	}
	if c.prefix == "" {
		return normalized
	}
	return c.prefix + "." + normalized
}

func sanitizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), ".")
}

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_", "@", "_", "\n", "_")

// normalizeMetricName strips characters that have a meaning in the line protocol.
func normalizeMetricName(name string) string {
	n := nameReplacer.Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

var tagReplacer = strings.NewReplacer(",", "_", "|", "_", "\n", "_")

// formatTags renders tags as sorted key:value pairs without the leading "|#". Keys in
// override win over keys in tags.
func formatTags(tags, override map[string]string) string {
	merged := make(map[string]string, len(tags)+len(override))
	for _, src := range []map[string]string{tags, override} {
		for k, v := range src {
			if key := strings.TrimSpace(k); key != "" {
				merged[tagReplacer.Replace(key)] = tagReplacer.Replace(strings.TrimSpace(v))
			}
		}
	}
	if len(merged) == 0 {
		return ""
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String()
}

// mergeTags joins the pre-rendered global tags with the per-metric ones.
func mergeTags(global, local string) string {
	switch {
	case global == "" && local == "":
		return ""
	case global == "":
		return "|#" + local
	case local == "":
		return "|#" + global
	}
	return "|#" + global + "," + local
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
