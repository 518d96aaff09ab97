package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/queue"
)

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
	ev := queue.MailEvent{Kind: queue.MailSignupConfirmation, To: "a@nitc.ac.in"}

	tests := []struct {
		name    string
		timeout time.Duration
		ctx     func() (context.Context, context.CancelFunc)
	}{
		{
			name:    "dial timeout",
			timeout: 200 * time.Millisecond,
			ctx:     func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
		},
		{
			name:    "request deadline",
			timeout: time.Minute,
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 200*time.Millisecond)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &MailPublisher{URL: silentBroker(t), DialTimeout: tt.timeout}
			ctx, cancel := tt.ctx()
			defer cancel()

			start := time.Now()
			if err := p.Publish(ctx, ev); err == nil {
				t.Fatal("expected publish to fail")
			}
			if took := time.Since(start); took > 5*time.Second {
				t.Errorf("publish took %v", took)
			}
		})
	}
}
