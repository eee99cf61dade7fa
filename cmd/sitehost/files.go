package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sitehost/internal/workspace"
)

// maxLocalFile skips files too large to be part of a generated site.
const maxLocalFile = 8 << 20

var languageByExt = map[string]string{
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".js":   "javascript",
	".mjs":  "javascript",
	".json": "json",
	".svg":  "svg",
	".txt":  "text",
	".md":   "markdown",
}

// loadFiles reads a deploy payload from a directory tree or a JSON file.
// JSON may be either {"files":[...]} or a bare array of files.
func loadFiles(source string) ([]workspace.File, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", source, err)
	}
	if info.IsDir() {
		return loadDirectory(source)
	}
	return loadJSON(source)
}

func loadJSON(file string) ([]workspace.File, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var files []workspace.File
		if err := json.Unmarshal(data, &files); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		return files, nil
	}
	var payload struct {
		Files []workspace.File `json:"files"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return payload.Files, nil
}

func loadDirectory(root string) ([]workspace.File, error) {
	var files []workspace.File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxLocalFile {
			return fmt.Errorf("%s is larger than %d bytes", p, maxLocalFile)
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, workspace.File{
			Name:     rel,
			Content:  string(content),
			Language: languageByExt[strings.ToLower(path.Ext(rel))],
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, errors.New("directory contains no files")
	}
	return files, nil
}
