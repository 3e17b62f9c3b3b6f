package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "direct", remote: "203.0.113.7:4000", want: "203.0.113.7"},
		{
			name:    "forwarded header from untrusted peer is ignored",
			remote:  "203.0.113.7:4000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:    "203.0.113.7",
		},
		{
			name:    "first forwarded address behind trusted proxy",
			remote:  "10.0.0.2:4000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.3"},
			want:    "198.51.100.1",
		},
		{
			name:    "real ip header behind trusted proxy",
			remote:  "127.0.0.1:4000",
			headers: map[string]string{"X-Real-IP": "198.51.100.9"},
			want:    "198.51.100.9",
		},
		{
			name:    "invalid forwarded address",
			remote:  "192.168.1.1:4000",
			headers: map[string]string{"X-Forwarded-For": "not-an-ip"},
			want:    "192.168.1.1",
		},
	}
	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/telegram", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Fatalf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddlewareRejectsProbes(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		method, target string
		want           int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/.env", http.StatusNotFound},
		{http.MethodGet, "/wp-admin/setup.php", http.StatusNotFound},
		{http.MethodGet, "/readyz?q=../../etc/passwd", http.StatusNotFound},
		{"TRACE", "/healthz", http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.target, nil))
		if rr.Code != tt.want {
			t.Fatalf("%s %s: status = %d, want %d", tt.method, tt.target, rr.Code, tt.want)
		}
	}
	if d.Probes() != 4 {
		t.Fatalf("Probes = %d, want 4", d.Probes())
	}
}
