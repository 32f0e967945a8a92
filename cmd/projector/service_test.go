package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/logger"
)

type blockingConsumer struct {
	started chan struct{}
	err     error
}

func (c *blockingConsumer) Run(ctx context.Context) error {
	close(c.started)
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type countingWaiter struct {
	calls atomic.Int32
}

func (w *countingWaiter) Wait(context.Context) error {
	w.calls.Add(1)
	return nil
}

func newTestService(t *testing.T, consumer eventConsumer, waiter detachedWaiter) *Service {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	svc, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Consumer:   consumer,
		Dispatcher: waiter,
		Handler:    handler,
		Addr:       "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestServiceServesUntilCanceled(t *testing.T) {
	consumer := &blockingConsumer{started: make(chan struct{})}
	waiter := &countingWaiter{}
	svc := newTestService(t, consumer, waiter)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.serve(ctx, listener) }()

	<-consumer.started
	resp, err := http.Get("http://" + listener.Addr().String() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
	}
	if waiter.calls.Load() != 1 {
		t.Fatalf("expected detached handlers to be drained once, got %d", waiter.calls.Load())
	}
}

func TestServiceStopsWhenConsumerFails(t *testing.T) {
	consumer := &blockingConsumer{started: make(chan struct{}), err: errors.New("subscription deleted")}
	svc := newTestService(t, consumer, &countingWaiter{})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.serve(context.Background(), listener) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "subscription deleted") {
			t.Fatalf("expected consumer error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop after consumer failure")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatalf("expected error without consumer")
	}
}
