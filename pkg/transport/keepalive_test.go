package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveDefaults(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{}, func(uint32) error { return nil }, nil)
	if ka.config.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", ka.config.PingInterval, DefaultPingInterval)
	}
	if ka.config.PongTimeout != DefaultPongTimeout {
		t.Errorf("PongTimeout = %v, want %v", ka.config.PongTimeout, DefaultPongTimeout)
	}
	if ka.config.MaxMissedPongs != DefaultMaxMissedPongs {
		t.Errorf("MaxMissedPongs = %d, want %d", ka.config.MaxMissedPongs, DefaultMaxMissedPongs)
	}
}

func TestDetectionDelay(t *testing.T) {
	cfg := KeepAliveConfig{
		PingInterval:   10 * time.Second,
		PongTimeout:    2 * time.Second,
		MaxMissedPongs: 3,
	}
	if got := cfg.DetectionDelay(); got != 32*time.Second {
		t.Errorf("DetectionDelay = %v, want 32s", got)
	}
}

func TestKeepAlivePongResetsMissed(t *testing.T) {
	var pings atomic.Int32
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 100,
	}, func(seq uint32) error {
		pings.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	defer ka.Stop()

	// Answer every ping promptly
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case <-deadline:
			stats := ka.Stats()
			if stats.MissedPongs != 0 {
				t.Errorf("MissedPongs = %d, want 0", stats.MissedPongs)
			}
			if pings.Load() < 2 {
				t.Errorf("pings = %d, want at least 2", pings.Load())
			}
			return
		default:
			ka.PongReceived(ka.Stats().CurrentSeq)
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	timedOut := make(chan struct{})
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error { return nil }, func() {
		close(timedOut)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	defer ka.Stop()

	// Never answer pings; onTimeout must fire
	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("keep-alive timeout never fired")
	}
}

func TestKeepAliveStartStop(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval: time.Hour,
	}, func(uint32) error { return nil }, nil)

	ctx := context.Background()
	ka.Start(ctx)
	if !ka.IsRunning() {
		t.Error("IsRunning = false after Start")
	}

	// Second Start is a no-op
	ka.Start(ctx)

	ka.Stop()
	if ka.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}

	// Second Stop is a no-op
	ka.Stop()
}

func TestKeepAliveStaleSeqIgnored(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   time.Hour,
		PongTimeout:    time.Hour,
		MaxMissedPongs: 3,
	}, func(uint32) error { return nil }, nil)

	ka.ping()
	before := ka.Stats()

	// A pong for a different sequence leaves the ping pending
	ka.handlePong(before.CurrentSeq + 5)
	ka.mu.Lock()
	pending := ka.hasPending
	ka.mu.Unlock()
	if !pending {
		t.Error("stale pong cleared the pending ping")
	}

	// The matching pong clears it
	ka.handlePong(before.CurrentSeq)
	ka.mu.Lock()
	pending = ka.hasPending
	ka.mu.Unlock()
	if pending {
		t.Error("matching pong did not clear the pending ping")
	}
}
