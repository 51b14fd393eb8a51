package viewer

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlerServesRoot(t *testing.T) {
	w := get(t, Handler(""), "/")

	if w.Code != http.StatusOK {
		t.Errorf("GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Error("GET /: response doesn't contain HTML doctype")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestHandlerServesAssets(t *testing.T) {
	h := Handler("")
	tests := []struct {
		path     string
		contains string
	}{
		{"/viewer.js", "marker_click"},
		{"/viewer.css", "#map"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, h, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("GET %s: got status %d, want 200", tt.path, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("GET %s: body missing %q", tt.path, tt.contains)
			}
		})
	}
}

func TestHandlerFallback(t *testing.T) {
	h := Handler("")
	for _, path := range []string{"/nonexistent", "/some/deep/route"} {
		w := get(t, h, path)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: got status %d, want 200 (fallback)", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
			t.Errorf("GET %s: fallback didn't serve index.html", path)
		}
	}
}

func TestHandlerFilesystemMode(t *testing.T) {
	dir := t.TempDir()
	index := `<!DOCTYPE html><html><body>filesystem viewer</body></html>`
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "viewer.js"), []byte("// dev build"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := Handler(dir)

	if w := get(t, h, "/"); !strings.Contains(w.Body.String(), "filesystem viewer") {
		t.Errorf("filesystem GET /: got %q", w.Body.String())
	}
	if w := get(t, h, "/viewer.js"); !strings.Contains(w.Body.String(), "dev build") {
		t.Errorf("filesystem GET /viewer.js: got %q", w.Body.String())
	}
	if w := get(t, h, "/deep/route"); !strings.Contains(w.Body.String(), "filesystem viewer") {
		t.Error("filesystem fallback didn't serve filesystem index.html")
	}
}

func TestHandlerInvalidDirFallsBackToEmbed(t *testing.T) {
	w := get(t, Handler("/nonexistent/dir/that/does/not/exist"), "/")

	if w.Code != http.StatusOK {
		t.Errorf("invalid dir GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "viewer.js") {
		t.Error("invalid dir: didn't fall back to embedded index.html")
	}
}
