package webui

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// ErrNoIndex is returned when the asset directory has no index.html.
var ErrNoIndex = errors.New("webui: index.html not found")

// Dir opens a dashboard build directory, e.g. the output of `vite build`.
func Dir(dir string) (fs.FS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("webui: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("webui: %s is not a directory", dir)
	}
	fsys := os.DirFS(dir)
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil, ErrNoIndex
	}
	return fsys, nil
}

// Handler serves fsys with SPA fallback.
func Handler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upath := path.Clean("/" + r.URL.Path)
		name := strings.TrimPrefix(upath, "/")

		if name != "" && !isHashedAsset(name) {
			w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		}
		if name == "" {
			w.Header().Set("Cache-Control", "no-cache, must-revalidate")
			fileServer.ServeHTTP(w, r)
			return
		}

		if info, err := fs.Stat(fsys, name); err != nil || info.IsDir() {
			// Client-side route.
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/"
			w.Header().Set("Cache-Control", "no-cache, must-revalidate")
			fileServer.ServeHTTP(w, r2)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// isHashedAsset reports whether name lives under the bundler's assets
// directory, where file names carry a content hash.
func isHashedAsset(name string) bool {
	return strings.HasPrefix(name, "assets/")
}
