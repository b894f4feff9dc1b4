package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/any-hub/tunecache/internal/config"
)

func TestNewUpstreamClientUsesLongestTimeoutForHeaders(t *testing.T) {
	cfg := &config.Config{
		Media: config.MediaConfig{
			FetchTimeout: config.Duration(20 * time.Second),
			RetryTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 0 {
		t.Fatalf("expected no client-wide timeout, got %s", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if transport.ResponseHeaderTimeout != 45*time.Second {
		t.Fatalf("expected header timeout 45s, got %s", transport.ResponseHeaderTimeout)
	}
	if !transport.DisableCompression {
		t.Fatalf("expected compression disabled")
	}
}

func TestNewUpstreamClientDefaults(t *testing.T) {
	client := NewUpstreamClient(nil)
	transport := client.Transport.(*http.Transport)
	if transport.ResponseHeaderTimeout != 20*time.Second {
		t.Fatalf("expected default header timeout 20s, got %s", transport.ResponseHeaderTimeout)
	}
}

func TestCopyHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("Proxy-Connection", "keep-alive")
	src.Add("User-Agent", "player/1.0")
	src.Add("Cookie", "a=1")
	src.Add("cookie", "b=2")

	dst := http.Header{}
	CopyHeaders(dst, src)

	for _, key := range []string{"Connection", "Keep-Alive", "Proxy-Connection"} {
		if _, exists := dst[key]; exists {
			t.Fatalf("%s header should not be copied", key)
		}
	}
	if dst.Get("User-Agent") != "player/1.0" {
		t.Fatalf("expected user agent forwarded")
	}
	if got := dst.Values("Cookie"); len(got) != 2 {
		t.Fatalf("expected 2 cookie values, got %v", got)
	}
}

func TestIsHopByHopHeaderIsCaseInsensitive(t *testing.T) {
	if !IsHopByHopHeader("transfer-encoding") {
		t.Fatalf("expected transfer-encoding to be hop-by-hop")
	}
	if IsHopByHopHeader("Range") {
		t.Fatalf("range is end-to-end")
	}
}
