// Package configpaths lists where girgen looks for configuration files.
package configpaths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "girgen"

// Format is a configuration syntax read by one of the kong loaders.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

var (
	formats    = []Format{JSON, YAML, TOML}
	extensions = map[Format][]string{
		JSON: {".json"},
		YAML: {".yaml", ".yml"},
		TOML: {".toml"},
	}
)

// ParseFormat accepts a format name as written on the command line.
func ParseFormat(name string) (Format, bool) {
	switch strings.ToLower(name) {
	case "json":
		return JSON, true
	case "yaml", "yml":
		return YAML, true
	case "toml":
		return TOML, true
	}
	return "", false
}

// FormatOf picks the loader for a file by extension. Unknown extensions are
// read as JSON.
func FormatOf(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range formats {
		for _, e := range extensions[f] {
			if e == ext {
				return f
			}
		}
	}
	return JSON
}

// DefaultConfigDir is the per-user girgen configuration directory.
func DefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// DefaultNamedConfigPath is baseName in the user config dir with the
// canonical extension of format.
func DefaultNamedConfigPath(baseName, format string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	f, ok := ParseFormat(format)
	if !ok {
		f = JSON
	}
	return filepath.Join(dir, baseName+extensions[f][0]), nil
}

// EnsureDir creates the parent directory of filePath.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

type location struct {
	dir   string
	bases []string
}

func locations() []location {
	var out []location
	if wd, err := os.Getwd(); err == nil {
		out = append(out, location{dir: wd, bases: []string{appName, "generate"}})
	}
	if dir, err := DefaultConfigDir(); err == nil {
		out = append(out, location{dir: dir, bases: []string{"config", "generate"}})
	}
	if runtime.GOOS != "windows" {
		out = append(out, location{dir: filepath.Join("/etc", appName), bases: []string{"config", "generate"}})
	}
	return out
}

// ConfigCandidatePaths returns the files each loader should try, highest
// priority first. A userPath is routed to its loader by extension and
// precedes every default location.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	byFormat := map[Format][]string{}
	if userPath != "" {
		f := FormatOf(userPath)
		byFormat[f] = append(byFormat[f], userPath)
	}
	for _, loc := range locations() {
		for _, base := range loc.bases {
			for _, f := range formats {
				for _, ext := range extensions[f] {
					byFormat[f] = append(byFormat[f], filepath.Join(loc.dir, base+ext))
				}
			}
		}
	}
	return byFormat[JSON], byFormat[YAML], byFormat[TOML]
}
