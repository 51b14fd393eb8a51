package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPAssetLoader(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer asset-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/plan-1":
			w.Header().Set("Content-Type", "image/svg+xml")
			w.Write([]byte("<svg/>")) //nolint:errcheck // Test server
		case "/plan-2":
			w.Write(png) //nolint:errcheck // Test server
		case "/big":
			w.Write(bytes.Repeat([]byte("x"), 2048)) //nolint:errcheck // Test server
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader := NewHTTPAssetLoader(srv.URL+"/", "asset-token", 5*time.Second, 1024)
	ctx := context.Background()

	t.Run("explicit content type", func(t *testing.T) {
		data, ct, err := loader.Load(ctx, "plan-1")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if string(data) != "<svg/>" || ct != "image/svg+xml" {
			t.Errorf("Load() = %q, %q", data, ct)
		}
	})

	t.Run("sniffed content type", func(t *testing.T) {
		_, ct, err := loader.Load(ctx, "plan-2")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if ct != "image/png" {
			t.Errorf("content type = %q, want image/png", ct)
		}
	})

	tests := []struct {
		id   string
		want error
	}{
		{"missing", ErrAssetNotFound},
		{"big", ErrAssetTooLarge},
		{"broken", ErrAssetFetchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if _, _, err := loader.Load(ctx, tt.id); !errors.Is(err, tt.want) {
				t.Errorf("Load(%s) error = %v, want %v", tt.id, err, tt.want)
			}
		})
	}

	t.Run("wrong token", func(t *testing.T) {
		bad := NewHTTPAssetLoader(srv.URL, "nope", time.Second, 0)
		if _, _, err := bad.Load(ctx, "plan-1"); !errors.Is(err, ErrAssetFetchFailed) {
			t.Errorf("Load() error = %v, want ErrAssetFetchFailed", err)
		}
	})
}
