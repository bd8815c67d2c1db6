package walker_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinder/internal/walker"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestDiscoverFindsSourceFilesSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b", "Second.cs"), []byte("class B {}"))
	writeFile(t, filepath.Join(root, "a", "First.cs"), []byte("class A {}"))
	writeFile(t, filepath.Join(root, "README.md"), []byte("docs"))

	files, err := walker.Discover(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, files[0].Path, "First.cs")
	assert.Contains(t, files[1].Path, "Second.cs")
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Positive(t, f.SizeBytes)
		assert.Positive(t, f.ModifiedNanos)
	}
}

func TestDiscoverSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "App.cs"), []byte("class App {}"))
	writeFile(t, filepath.Join(root, "bin", "Gen.cs"), []byte("class Gen {}"))
	writeFile(t, filepath.Join(root, "obj", "Tmp.cs"), []byte("class Tmp {}"))
	writeFile(t, filepath.Join(root, ".git", "Hook.cs"), []byte("class Hook {}"))

	files, err := walker.Discover(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Path, "App.cs")
}

func TestDiscoverSkipsEmptyAndOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Empty.cs"), nil)
	writeFile(t, filepath.Join(root, "Huge.cs"), bytes.Repeat([]byte("x"), 1<<20+1))
	writeFile(t, filepath.Join(root, "Ok.cs"), []byte("class Ok {}"))

	files, err := walker.Discover(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Path, "Ok.cs")
}

func TestDiscoverCreatesDefaultIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.cs"), []byte("class A {}"))

	_, err := walker.Discover(root)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, ".cinderignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "bin")
	assert.Contains(t, string(data), ".git")
}

func TestDiscoverHonorsCustomIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".cinderignore"), []byte("# comment\n\nvendored\n"))
	writeFile(t, filepath.Join(root, "vendored", "Dep.cs"), []byte("class Dep {}"))
	writeFile(t, filepath.Join(root, "Keep.cs"), []byte("class Keep {}"))

	files, err := walker.Discover(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Path, "Keep.cs")
}

func TestStatMatchesDiscover(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "A.cs")
	writeFile(t, path, []byte("class A {}"))

	files, err := walker.Discover(root)
	require.NoError(t, err)
	require.Len(t, files, 1)

	fi, err := walker.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, files[0], fi)
}

func TestIsSourceFile(t *testing.T) {
	assert.True(t, walker.IsSourceFile("/a/b/App.cs"))
	assert.True(t, walker.IsSourceFile("App.CS"))
	assert.False(t, walker.IsSourceFile("App.csproj"))
	assert.False(t, walker.IsSourceFile("app.go"))
	assert.False(t, walker.IsSourceFile("noext"))
}
