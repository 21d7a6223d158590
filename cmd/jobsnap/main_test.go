package main

import (
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewServer_CancelReachesInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(canceled)
		case <-time.After(5 * time.Second):
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, cancelRequests := newServer(ln.Addr().String(), handler)
	go srv.Serve(ln)
	defer srv.Close()

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/scrape")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}

	cancelRequests()

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request context was not canceled")
	}
}
