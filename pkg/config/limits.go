package config

import (
	"fmt"
	"sync"
	"time"
)

// SectionIDLimits is the identifier for the limits section.
const SectionIDLimits = "limits"

// LimitsSection holds the runtime bounds of the session manager.
type LimitsSection struct {
	mu sync.RWMutex

	streamTimeout      time.Duration
	subscriberBuffer   int
	maxToolOutputBytes int
	idleTTL            time.Duration
}

// NewLimitsSection creates the section with default limits.
func NewLimitsSection() *LimitsSection {
	return &LimitsSection{
		streamTimeout:      5 * time.Minute,
		subscriberBuffer:   64,
		maxToolOutputBytes: 64 << 10,
		idleTTL:            30 * time.Minute,
	}
}

// ID returns the section identifier.
func (s *LimitsSection) ID() string {
	return SectionIDLimits
}

// Data returns the current configuration data.
func (s *LimitsSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"stream_timeout_seconds": int(s.streamTimeout / time.Second),
		"subscriber_buffer":      s.subscriberBuffer,
		"max_tool_output_bytes":  s.maxToolOutputBytes,
		"idle_ttl_minutes":       int(s.idleTTL / time.Minute),
	}
}

// SetData updates the configuration from the provided data. JSON numbers
// arrive as float64.
func (s *LimitsSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := asInt(data["stream_timeout_seconds"]); ok {
		s.streamTimeout = time.Duration(v) * time.Second
	}
	if v, ok := asInt(data["subscriber_buffer"]); ok {
		s.subscriberBuffer = v
	}
	if v, ok := asInt(data["max_tool_output_bytes"]); ok {
		s.maxToolOutputBytes = v
	}
	if v, ok := asInt(data["idle_ttl_minutes"]); ok {
		s.idleTTL = time.Duration(v) * time.Minute
	}
	return nil
}

// Validate checks the limits are sane.
func (s *LimitsSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.streamTimeout <= 0 {
		return fmt.Errorf("stream_timeout_seconds must be positive")
	}
	if s.subscriberBuffer < 1 {
		return fmt.Errorf("subscriber_buffer must be at least 1")
	}
	if s.maxToolOutputBytes < 0 {
		return fmt.Errorf("max_tool_output_bytes cannot be negative")
	}
	if s.idleTTL < 0 {
		return fmt.Errorf("idle_ttl_minutes cannot be negative")
	}
	return nil
}

// StreamTimeout returns the hard per-turn stream timeout.
func (s *LimitsSection) StreamTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamTimeout
}

// SubscriberBuffer returns the per-subscriber channel capacity.
func (s *LimitsSection) SubscriberBuffer() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriberBuffer
}

// MaxToolOutputBytes returns the tool output size bound.
func (s *LimitsSection) MaxToolOutputBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxToolOutputBytes
}

// IdleTTL returns how long an idle session lives before reaping.
func (s *LimitsSection) IdleTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idleTTL
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
