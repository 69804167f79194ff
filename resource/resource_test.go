package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("//!HOOK MAIN\n"), 0o644))
}

func TestIsReadable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.glsl")
	writeFile(t, file)

	require.True(t, IsReadable(file))
	require.False(t, IsReadable(dir))
	require.False(t, IsReadable(filepath.Join(dir, "missing.glsl")))
	require.False(t, IsReadable(""))
}

func TestResolveShader(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	custom := filepath.Join(t.TempDir(), "custom.glsl")
	writeFile(t, custom)
	writeFile(t, filepath.Join(rootB, ShaderDir, "anime4k-v4-a.glsl"))

	f := &Finder{Roots: []string{rootA, rootB}}

	t.Run("direct path", func(t *testing.T) {
		require.Equal(t, custom, f.ResolveShader(custom))
	})
	t.Run("fallback to a resource root", func(t *testing.T) {
		require.Equal(t,
			filepath.Join(rootB, ShaderDir, "anime4k-v4-a.glsl"),
			f.ResolveShader("anime4k-v4-a"),
		)
	})
	t.Run("not found", func(t *testing.T) {
		p := f.ResolveShader("no-such-shader")
		require.Equal(t, filepath.Join(rootA, ShaderDir, "no-such-shader.glsl"), p)
		require.False(t, IsReadable(p))
	})
}

func TestFindFileNoRoots(t *testing.T) {
	f := &Finder{IsReadable: func(string) bool { return false }}
	require.Equal(t, "models/x.glsl", f.FindFile("models/x.glsl"))
}

func TestNewFinderExtraRootsFirst(t *testing.T) {
	f := NewFinder("avplacebo", "/opt/shaders")
	require.Equal(t, "/opt/shaders", f.Roots[0])
	require.Contains(t, f.Roots, "/usr/share/avplacebo")
}
