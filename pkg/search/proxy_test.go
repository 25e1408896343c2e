package search

import (
	"testing"
)

func noEnv(string) string { return "" }

func noProbe(string, int) bool { return false }

func TestDetectProxyEnvPrecedence(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "HTTP_PROXY wins",
			env: map[string]string{
				"HTTP_PROXY":  "http://127.0.0.1:8080",
				"HTTPS_PROXY": "http://127.0.0.1:9090",
			},
			want: "http://127.0.0.1:8080",
		},
		{
			name: "lowercase fallback",
			env:  map[string]string{"http_proxy": "http://10.0.0.1:3128"},
			want: "http://10.0.0.1:3128",
		},
		{
			name: "socks5 scheme preserved",
			env:  map[string]string{"ALL_PROXY": "socks5://127.0.0.1:1080"},
			want: "socks5://127.0.0.1:1080",
		},
		{
			name: "socks5h normalized to socks5",
			env:  map[string]string{"ALL_PROXY": "socks5h://127.0.0.1:1080"},
			want: "socks5://127.0.0.1:1080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			cfg := detectProxy(getenv, noProbe)
			if cfg == nil {
				t.Fatal("expected a proxy, got nil")
			}
			if got := cfg.Server(); got != tt.want {
				t.Errorf("Server() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectProxyMalformedEnvFallsThrough(t *testing.T) {
	getenv := func(k string) string {
		if k == "HTTP_PROXY" {
			return "://not-a-url"
		}
		return ""
	}
	if cfg := detectProxy(getenv, noProbe); cfg != nil {
		t.Errorf("malformed env value produced proxy %v", cfg)
	}
}

func TestDetectProxyLocalPortProbing(t *testing.T) {
	// Only the clash HTTP port answers; it must win over the SOCKS5
	// candidates even though v2ray's SOCKS5 port also answers.
	probe := func(host string, port int) bool {
		return port == 7890 || port == 10808
	}

	cfg := detectProxy(noEnv, probe)
	if cfg == nil {
		t.Fatal("expected a proxy, got nil")
	}
	if cfg.Scheme != ProxyHTTP || cfg.Port != 7890 {
		t.Errorf("got %s, want http on 7890", cfg.Server())
	}
}

func TestDetectProxyNothingFound(t *testing.T) {
	if cfg := detectProxy(noEnv, noProbe); cfg != nil {
		t.Errorf("expected nil, got %v", cfg)
	}
}

func TestDetectProxyEnvBeatsProbe(t *testing.T) {
	getenv := func(k string) string {
		if k == "HTTPS_PROXY" {
			return "http://proxy.corp:3128"
		}
		return ""
	}
	probe := func(string, int) bool { return true }

	cfg := detectProxy(getenv, probe)
	if cfg == nil || cfg.Host != "proxy.corp" {
		t.Fatalf("environment proxy must take precedence, got %v", cfg)
	}
}
