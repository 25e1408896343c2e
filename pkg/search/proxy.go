package search

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

// ProxyScheme identifies the proxy protocol.
type ProxyScheme string

const (
	ProxyHTTP   ProxyScheme = "http"
	ProxySOCKS5 ProxyScheme = "socks5"
)

// ProxyConfig describes a proxy the browser should route through.
type ProxyConfig struct {
	Scheme ProxyScheme
	Host   string
	Port   int
}

// Server returns the proxy address in scheme://host:port form, as consumed
// by the browser launch options.
func (p ProxyConfig) Server() string {
	return fmt.Sprintf("%s://%s:%d", p.Scheme, p.Host, p.Port)
}

// proxyEnvVars are checked in order; the first non-empty one wins.
var proxyEnvVars = []string{
	"HTTP_PROXY", "http_proxy",
	"HTTPS_PROXY", "https_proxy",
	"ALL_PROXY", "all_proxy",
}

// localProxyCandidates are well-known local proxy ports, probed in order.
// HTTP entries come first: HTTP proxies are more stable under the driver
// than SOCKS5, so they win the tie-break.
var localProxyCandidates = []ProxyConfig{
	{Scheme: ProxyHTTP, Host: "127.0.0.1", Port: 10809},   // v2ray HTTP
	{Scheme: ProxyHTTP, Host: "127.0.0.1", Port: 7890},    // clash HTTP
	{Scheme: ProxySOCKS5, Host: "127.0.0.1", Port: 10808}, // v2ray SOCKS5
	{Scheme: ProxySOCKS5, Host: "127.0.0.1", Port: 7891},  // clash SOCKS5
	{Scheme: ProxySOCKS5, Host: "127.0.0.1", Port: 1080},  // generic SOCKS5
}

const probeTimeout = 500 * time.Millisecond

// DetectProxy inspects the environment and common local proxy ports and
// returns the proxy to use, or nil when none is found. Detection is
// best-effort: probe failures are treated as "not found", never as errors.
func DetectProxy() *ProxyConfig {
	return detectProxy(os.Getenv, probePort)
}

// detectProxy is the injectable core of DetectProxy.
func detectProxy(getenv func(string) string, probe func(host string, port int) bool) *ProxyConfig {
	for _, name := range proxyEnvVars {
		if raw := getenv(name); raw != "" {
			if cfg := parseProxyURL(raw); cfg != nil {
				return cfg
			}
		}
	}

	for _, cand := range localProxyCandidates {
		if probe(cand.Host, cand.Port) {
			c := cand
			return &c
		}
	}

	return nil
}

// parseProxyURL converts a proxy environment value into a ProxyConfig.
// Malformed values are ignored, keeping detection best-effort.
func parseProxyURL(raw string) *ProxyConfig {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil
	}

	scheme := ProxyHTTP
	switch u.Scheme {
	case "socks5", "socks5h":
		scheme = ProxySOCKS5
	case "http", "https", "":
		scheme = ProxyHTTP
	default:
		return nil
	}

	port := 80
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		port = n
	}

	return &ProxyConfig{Scheme: scheme, Host: u.Hostname(), Port: port}
}

// probePort reports whether a TCP listener answers on host:port.
func probePort(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
