package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestEnableCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{name: "open", allowed: nil, origin: "https://x.test", method: http.MethodPost, wantOrigin: "*", wantStatus: http.StatusTeapot},
		{name: "allowed origin", allowed: []string{"http://localhost:5173"}, origin: "http://localhost:5173", method: http.MethodPost, wantOrigin: "http://localhost:5173", wantStatus: http.StatusTeapot},
		{name: "other origin", allowed: []string{"http://localhost:5173"}, origin: "https://evil.test", method: http.MethodPost, wantOrigin: "", wantStatus: http.StatusTeapot},
		{name: "preflight", allowed: nil, origin: "https://x.test", method: http.MethodOptions, wantOrigin: "*", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/simulate", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			EnableCORS(tt.allowed, okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}
