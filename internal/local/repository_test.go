package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, WithPrefix("run-1"))

	require.NoError(t, r.Write(context.Background(), "items/part-00000.parquet", strings.NewReader("data")))
	bs, err := os.ReadFile(filepath.Join(dir, "run-1", "items", "part-00000.parquet"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(bs))
	assert.Equal(t, filepath.Join(dir, "run-1"), r.Dir())

	assert.Error(t, r.Write(context.Background(), "../escape", strings.NewReader("x")))
}
