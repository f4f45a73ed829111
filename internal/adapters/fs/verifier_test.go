package fs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
)

func TestVerifier_VerifyOutputs(t *testing.T) {
	tmpDir := t.TempDir()
	verifier := fs.NewVerifier(fs.NewResolver())

	writeTree(t, tmpDir, map[string]string{
		"include/jpeglib.h": "h",
		"lib/libjpeg.a":     "a",
	})

	// All outputs exist
	missing, err := verifier.VerifyOutputs(tmpDir, []string{"include/jpeglib.h", "lib/*.a"})
	require.NoError(t, err)
	assert.Empty(t, missing)

	// Some outputs missing
	missing, err = verifier.VerifyOutputs(tmpDir, []string{"include/jpeglib.h", "lib/libjpeg.so", "bin/*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/libjpeg.so", "bin/*"}, missing)
}
