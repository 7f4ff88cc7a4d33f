package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// resolveFilePath resolves name relative to rootPath and enforces that the
// result stays within the root.
func resolveFilePath(rootPath, name string) (string, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}
	absRoot = filepath.Clean(absRoot)

	absFile, err := filepath.Abs(filepath.Join(absRoot, filepath.FromSlash(name)))
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}
	absFile = filepath.Clean(absFile)

	if !strings.HasPrefix(absFile, absRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return absFile, nil
}

// ServeDir serves JPEG files under dir at prefix/{path}. Used for previews
// and, with the local storage driver, for published objects.
func (s *Server) ServeDir(prefix, dir string) {
	prefix = strings.TrimSuffix(prefix, "/")
	s.mux.HandleFunc("GET "+prefix+"/{path...}", s.enableCORS(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("path")
		for _, seg := range strings.Split(name, "/") {
			if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, `\`) {
				http.Error(w, "Invalid path", http.StatusBadRequest)
				return
			}
		}
		if ext := strings.ToLower(filepath.Ext(name)); ext != ".jpg" && ext != ".jpeg" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		path, err := resolveFilePath(dir, name)
		if err != nil {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, path)
	}))
}
