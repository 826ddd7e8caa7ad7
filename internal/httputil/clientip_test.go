package httputil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPRemoteAddr(t *testing.T) {
	for addr, want := range map[string]string{
		"192.168.1.1:12345": "192.168.1.1",
		"[::1]:12345":       "::1",
		"192.168.1.1":       "192.168.1.1",
	} {
		r := &http.Request{RemoteAddr: addr, Header: http.Header{}}
		assert.Equal(t, want, ClientIP(r, false), addr)
	}
}

func TestClientIPTrustProxy(t *testing.T) {
	tests := []struct {
		name string
		xff  string
		xri  string
		want string
	}{
		{"XFF single", "1.2.3.4", "", "1.2.3.4"},
		{"XFF chain takes first", "1.2.3.4, 10.0.0.1, 10.0.0.2", "", "1.2.3.4"},
		{"XFF IPv6", "2001:db8::1", "", "2001:db8::1"},
		{"X-Real-IP fallback", "", "5.6.7.8", "5.6.7.8"},
		{"XFF beats X-Real-IP", "1.2.3.4", "5.6.7.8", "1.2.3.4"},
		{"garbage XFF falls to X-Real-IP", "unknown", "5.6.7.8", "5.6.7.8"},
		{"garbage everywhere", "not-an-ip", "also-not", "10.0.0.1"},
		{"no headers", "", "", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, ClientIP(r, true))
		})
	}
}

func TestClientIPIgnoresHeadersWhenNotTrusted(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "10.0.0.1", ClientIP(r, false))
}
