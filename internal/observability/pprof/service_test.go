package pprof

import (
	"context"
	"net/http"
	"testing"
	"time"

	logx "github.com/Vaxity1/Aether/pkg/logx"
)

func waitAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server never bound")
	return ""
}

func get(t *testing.T, url string, header map[string]string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestServeWithToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sesame"}, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	addr := waitAddr(t, s)
	base := "http://" + addr

	if code := get(t, base+"/healthz", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", code)
	}
	if code := get(t, base+"/healthz", map[string]string{"Authorization": "Bearer sesame"}); code != http.StatusOK {
		t.Fatalf("bearer token: %d", code)
	}
	if code := get(t, base+"/healthz?token=sesame", nil); code != http.StatusOK {
		t.Fatalf("query token: %d", code)
	}
	if code := get(t, base+"/debug/pprof/", map[string]string{"Authorization": "Bearer sesame"}); code != http.StatusOK {
		t.Fatalf("pprof index: %d", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	if a := s.Addr(); a != "" {
		t.Fatalf("still bound after Stop: %s", a)
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	time.Sleep(200 * time.Millisecond)
	if a := s.Addr(); a != "" {
		t.Fatalf("insecure bind accepted: %s", a)
	}
}

func TestNormalizePrefix(t *testing.T) {
	cases := map[string]string{
		"":              "/debug/pprof/",
		"/debug/pprof":  "/debug/pprof/",
		"debug/pprof/":  "/debug/pprof/",
		"/internal/pp/": "/internal/pp/",
	}
	for in, want := range cases {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		":6060":          false,
		"10.0.0.5:6060":  false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
