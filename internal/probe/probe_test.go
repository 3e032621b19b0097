package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestAwaitReadyAnyStatusCounts(t *testing.T) {
	// A 404 still proves a server is answering on the port.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such article", http.StatusNotFound)
	}))
	defer srv.Close()

	p := New(time.Second, 3, 10*time.Millisecond, nil)
	if err := p.AwaitReady(context.Background(), "comments", srv.URL); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
}

func TestAwaitReadyRetriesUntilServerAppears(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	// Start the listener only after a couple of probe intervals.
	go func() {
		time.Sleep(60 * time.Millisecond)
		srv.Start()
	}()
	defer srv.Close()

	// The unstarted server already owns its listener, so probe a copy of the
	// eventual URL once it is known.
	time.Sleep(5 * time.Millisecond)
	p := New(time.Second, 50, 20*time.Millisecond, nil)
	url := "http://" + srv.Listener.Addr().String() + "/"
	if err := p.AwaitReady(context.Background(), "articles", url); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if calls.Load() == 0 {
		t.Fatalf("server never handled the probe")
	}
}

func TestAwaitReadyExhaustsExactAttemptBudget(t *testing.T) {
	p := New(50*time.Millisecond, 3, 10*time.Millisecond, nil)
	start := time.Now()
	err := p.AwaitReady(context.Background(), "ghost", "http://127.0.0.1:1/")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if te.Attempts != 3 || te.Service != "ghost" {
		t.Fatalf("unexpected error fields: %+v", te)
	}
	// Two sleeps between three attempts, none after the last.
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned too fast (%v): interval not honored", elapsed)
	}
}

func TestAwaitReadyContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(time.Second, 30, 2*time.Second, nil)
	err := p.AwaitReady(ctx, "svc", "http://127.0.0.1:1/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		t.Fatalf("cancellation must not be reported as readiness failure")
	}
}
