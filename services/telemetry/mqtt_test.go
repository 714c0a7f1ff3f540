package telemetry

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// silentBroker accepts TCP connections and never answers CONNECT.
func silentBroker(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	return l.Addr().String()
}

func TestDialMQTTGivesUpWhenBrokerIsSilent(t *testing.T) {
	addr := silentBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	p, err := DialMQTT(ctx, addr, "relay-test")
	if err == nil {
		p.Close()
		t.Fatal("dial to a silent broker should fail")
	}
	if p != nil {
		t.Error("publisher returned alongside an error")
	}
	if took := time.Since(start); took > time.Second {
		t.Errorf("dial took %v, want it bounded by ctx", took)
	}
}
