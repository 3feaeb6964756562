package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOutputName(t *testing.T) {
	name, err := defaultOutputName("some/dir")
	require.NoError(t, err)
	assert.Equal(t, "dir.csa", name)

	// Trailing separators name the directory, not an empty component.
	name, err = defaultOutputName("some/dir/")
	require.NoError(t, err)
	assert.Equal(t, "dir.csa", name)

	// "." resolves to the working directory's own name, never "..csa".
	cwd, err := os.Getwd()
	require.NoError(t, err)
	name, err = defaultOutputName(".")
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(cwd)+".csa", name)
}
