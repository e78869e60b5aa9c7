package httpkit

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestNewClient_Timeouts(t *testing.T) {
	if c := NewClient(); c.Timeout != 60*time.Second {
		t.Errorf("default timeout = %v, want 60s", c.Timeout)
	}
	if c := NewClient(WithTimeout(5 * time.Second)); c.Timeout != 5*time.Second {
		t.Errorf("custom timeout = %v, want 5s", c.Timeout)
	}
}

func TestNewClient_UserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts []ClientOption
		want string
	}{
		{name: "default", want: "Square15/"},
		{name: "override", opts: []ClientOption{WithUserAgent("TestBot/1.0")}, want: "TestBot/1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewClient(tt.opts...).Get(srv.URL)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if !strings.HasPrefix(string(body), tt.want) {
				t.Errorf("User-Agent = %q, want prefix %q", body, tt.want)
			}
		})
	}
}

type failingTransport struct {
	calls atomic.Int32
	fails int32
}

func (f *failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.fails {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    req,
	}, nil
}

func TestRetry_DialErrors(t *testing.T) {
	ft := &failingTransport{fails: 2}
	c := NewClient(WithTransport(ft), WithRetry(3, time.Millisecond))

	resp, err := c.Get("http://model.invalid/api/tags")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	resp.Body.Close()
	if got := ft.calls.Load(); got != 3 {
		t.Errorf("round trips = %d, want 3", got)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	ft := &failingTransport{fails: 10}
	c := NewClient(WithTransport(ft), WithRetry(2, time.Millisecond))

	if _, err := c.Get("http://model.invalid/api/tags"); err == nil {
		t.Fatal("Get() should fail after retries are exhausted")
	}
	if got := ft.calls.Load(); got != 3 {
		t.Errorf("round trips = %d, want 3", got)
	}
}

func TestIsDialError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, true},
		{fmt.Errorf("wrapped: %w", syscall.ECONNREFUSED), true},
		{syscall.ECONNRESET, false},
		{io.EOF, false},
	}
	for _, tt := range tests {
		if got := IsDialError(tt.err); got != tt.want {
			t.Errorf("IsDialError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader(strings.Repeat("x", 100)))
	if got := ReadErrorBody(body, 10); got != strings.Repeat("x", 10) {
		t.Errorf("ReadErrorBody() = %q, want 10 bytes", got)
	}
	if got := ReadErrorBody(nil, 10); got != "" {
		t.Errorf("ReadErrorBody(nil) = %q, want empty", got)
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Provider: "ollama", StatusCode: 500, Body: "boom"}
	if err.Error() != "ollama: HTTP 500: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
