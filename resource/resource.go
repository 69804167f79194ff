// Package resource locates files shipped alongside avplacebo (shaders), trying
// a list of resource roots in order.
package resource

import (
	"os"
	"path/filepath"
)

const (
	// ShaderDir is the directory, relative to a resource root, holding the
	// built-in shaders.
	ShaderDir = "models"

	// ShaderExt is appended to a short shader name.
	ShaderExt = ".glsl"
)

// IsReadable reports whether path is a regular file that can be opened for
// reading.
func IsReadable(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode().IsRegular()
}

// DefaultRoots returns the conventional resource roots for appName: the
// current directory, the system-wide share directories and the directory of
// the running executable.
func DefaultRoots(appName string) []string {
	roots := []string{
		".",
		filepath.Join("/usr/share", appName),
		filepath.Join("/usr/local/share", appName),
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		roots = append(roots, filepath.Dir(exe))
	}
	return roots
}

// Finder resolves resource-root-relative paths.
type Finder struct {
	Roots      []string
	IsReadable func(path string) bool
}

func NewFinder(appName string, extraRoots ...string) *Finder {
	return &Finder{
		Roots:      append(append([]string{}, extraRoots...), DefaultRoots(appName)...),
		IsReadable: IsReadable,
	}
}

func (f *Finder) isReadable(path string) bool {
	if f.IsReadable != nil {
		return f.IsReadable(path)
	}
	return IsReadable(path)
}

// FindFile returns the first readable relPath under Roots. If there is none,
// the path under the first root is returned anyway: whoever opens it reports
// the failure.
func (f *Finder) FindFile(relPath string) string {
	for _, root := range f.Roots {
		candidate := filepath.Join(root, relPath)
		if f.isReadable(candidate) {
			return candidate
		}
	}
	if len(f.Roots) == 0 {
		return relPath
	}
	return filepath.Join(f.Roots[0], relPath)
}

// ResolveShader turns a shader identifier into a path: the identifier itself
// if it is a readable file, otherwise the built-in shader with that name.
func (f *Finder) ResolveShader(identifier string) string {
	if f.isReadable(identifier) {
		return identifier
	}
	return f.FindFile(filepath.Join(ShaderDir, identifier+ShaderExt))
}
