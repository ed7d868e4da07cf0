// Package proxy maintains the rotating pool of egress endpoints used
// for publisher traffic. One gateway host exposes several ports, each
// mapping to a different egress IP; rotation walks them round-robin.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"newsward/internal/config"

	"github.com/playwright-community/playwright-go"
)

// Endpoint is one proxy egress.
type Endpoint struct {
	Host string
	Port int
}

// Server returns the http proxy URL for this endpoint, without credentials.
func (e Endpoint) Server() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// Pool rotates over configured proxy endpoints. A pool with no
// endpoints is valid and means direct connections.
type Pool struct {
	endpoints []Endpoint
	username  string
	password  string
	rotate    bool
	next      atomic.Uint64
}

// NewPool builds a pool from config. Rotation disabled pins the first endpoint.
func NewPool(cfg config.Proxy) *Pool {
	p := &Pool{username: cfg.Username, password: cfg.Password, rotate: cfg.RotationEnabled}
	for _, port := range cfg.Ports {
		p.endpoints = append(p.endpoints, Endpoint{Host: cfg.Host, Port: port})
	}
	return p
}

// Enabled reports whether any endpoints are configured.
func (p *Pool) Enabled() bool { return len(p.endpoints) > 0 }

// Next returns the endpoint for the next attempt.
func (p *Pool) Next() (Endpoint, bool) {
	if len(p.endpoints) == 0 {
		return Endpoint{}, false
	}
	if !p.rotate {
		return p.endpoints[0], true
	}
	n := p.next.Add(1) - 1
	return p.endpoints[n%uint64(len(p.endpoints))], true
}

// URL builds the authenticated proxy URL for an endpoint.
func (p *Pool) URL(e Endpoint) *url.URL {
	u := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", e.Host, e.Port)}
	if p.username != "" {
		u.User = url.UserPassword(p.username, p.password)
	}
	return u
}

// Transport returns an http.Transport that picks a fresh endpoint per
// request. With an empty pool the transport connects directly.
func (p *Pool) Transport() *http.Transport {
	t := &http.Transport{}
	if p.Enabled() {
		t.Proxy = func(*http.Request) (*url.URL, error) {
			e, _ := p.Next()
			return p.URL(e), nil
		}
	}
	return t
}

// Playwright returns launch options for browser traffic through the
// given endpoint, nil when the pool is empty.
func (p *Pool) Playwright(e Endpoint) *playwright.Proxy {
	if !p.Enabled() {
		return nil
	}
	pw := &playwright.Proxy{Server: e.Server()}
	if p.username != "" {
		pw.Username = playwright.String(p.username)
		pw.Password = playwright.String(p.password)
	}
	return pw
}
