package logger

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRotator_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	r := &Rotator{Filename: path, MaxSize: 10, MaxBackups: 2}
	defer r.Close()

	for _, line := range []string{"first\n", "second\n", "third\n", "fourth\n"} {
		_, err := r.Write([]byte(line))
		require.NoError(t, err)
	}

	assert.Equal(t, "fourth\n", read(t, path))
	assert.Equal(t, "third\n", read(t, path+".1"))
	assert.Equal(t, "second\n", read(t, path+".2"))
	// Only MaxBackups backups are kept.
	_, err := os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotator_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

	r := &Rotator{Filename: path, MaxSize: 1024, MaxBackups: 1}
	defer r.Close()
	_, err := r.Write([]byte("new\n"))
	require.NoError(t, err)

	assert.Equal(t, "old\nnew\n", read(t, path))
}

func TestSetup(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetFlags(log.LstdFlags)

	path := filepath.Join(t.TempDir(), "server.log")
	r := Setup(path, 1, 3)
	require.NotNil(t, r)
	defer r.Close()

	log.Printf("hello from setup")
	content := read(t, path)
	assert.True(t, strings.Contains(content, "hello from setup"), content)
	assert.Contains(t, content, "logger_test.go")

	assert.Nil(t, Setup("", 1, 3))
}
