package util

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	transient := &RetryableError{Err: errors.New("busy")}
	permanent := errors.New("gone")

	tests := []struct {
		name      string
		failures  int
		err       error
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, transient, 3, 1, false},
		{"recovers", 2, transient, 3, 3, false},
		{"exhausted", 5, transient, 3, 3, true},
		{"permanent", 5, permanent, 3, 1, true},
		{"zero attempts runs once", 5, transient, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tt.attempts, time.Millisecond, func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return &RetryableError{Err: errors.New("busy")}
	})
	if err == nil || calls != 1 {
		t.Errorf("err = %v, calls = %d; want error after one call", err, calls)
	}
}

func TestGetBytesRetryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := GetBytes(context.Background(), srv.URL, time.Second, 0)
		srv.Close()
		var re *RetryableError
		if err == nil || errors.As(err, &re) != tt.retryable {
			t.Errorf("status %d: err = %v, retryable = %v", tt.status, err, errors.As(err, &re))
		}
	}
}

func TestGetBytesRetriedUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var body []byte
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		var err error
		body, err = GetBytes(context.Background(), srv.URL, time.Second, 0)
		return err
	})
	if err != nil || string(body) != "ok" || calls.Load() != 3 {
		t.Errorf("body = %q, err = %v, calls = %d", body, err, calls.Load())
	}
}
