package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGzipMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if len(body) > 0 {
			w.Write(body)
		} else {
			w.Write([]byte(`{"status":"OK"}`))
		}
	})

	wrapped := GzipMiddleware(handler)

	tests := []struct {
		name            string
		acceptEncoding  string
		contentEncoding string
		requestBody     string
		wantEncoding    string
		wantBody        string
	}{
		{
			name:           "client accepts gzip",
			acceptEncoding: "gzip",
			wantEncoding:   "gzip",
			wantBody:       `{"status":"OK"}`,
		},
		{
			name:         "client does not accept gzip",
			wantEncoding: "",
			wantBody:     `{"status":"OK"}`,
		},
		{
			name:            "compressed request body",
			contentEncoding: "gzip",
			requestBody:     `{"items":[]}`,
			wantEncoding:    "",
			wantBody:        `{"items":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.requestBody != "" && tt.contentEncoding == "gzip" {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				if _, err := gz.Write([]byte(tt.requestBody)); err != nil {
					t.Fatalf("compress request body: %v", err)
				}
				gz.Close()
				body = &buf
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.contentEncoding != "" {
				req.Header.Set("Content-Encoding", tt.contentEncoding)
			}

			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
			}

			if got := rr.Header().Get("Content-Encoding"); got != tt.wantEncoding {
				t.Fatalf("Content-Encoding = %q, want %q", got, tt.wantEncoding)
			}

			var respBody string
			if tt.wantEncoding == "gzip" {
				gz, err := gzip.NewReader(rr.Body)
				if err != nil {
					t.Fatalf("open gzip reader: %v", err)
				}
				defer gz.Close()
				b, err := io.ReadAll(gz)
				if err != nil {
					t.Fatalf("read compressed body: %v", err)
				}
				respBody = string(b)
			} else {
				respBody = rr.Body.String()
			}

			if strings.TrimSpace(respBody) != tt.wantBody {
				t.Fatalf("body = %q, want %q", respBody, tt.wantBody)
			}
		})
	}
}

func TestGzipMiddleware_InvalidCompressedBody(t *testing.T) {
	wrapped := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be called for broken gzip body")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
