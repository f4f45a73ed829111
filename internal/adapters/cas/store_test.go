package cas_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/core/domain"
)

const zlibKey = "os=Linux;arch=x86_64;compiler=gcc-13/libstdc++11;build_type=Release;fPIC=true;shared=false"

func newArtifact(t *testing.T, files map[string]string) domain.PackageArtifact {
	t.Helper()
	root := t.TempDir()

	var out []domain.ArtifactFile
	for _, rel := range []string{"include/zlib.h", "lib/libz.a"} {
		content, ok := files[rel]
		if !ok {
			continue
		}
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		out = append(out, domain.ArtifactFile{
			Path:   rel,
			Digest: digest.FromString(content),
			Size:   int64(len(content)),
			Mode:   0o644,
		})
	}

	return domain.PackageArtifact{
		Recipe:     domain.RecipeMeta{Name: "zlib", Version: "1.3"},
		ConfigKey:  zlibKey,
		Root:       root,
		Files:      out,
		Info:       domain.PackageInfo{Libs: []string{"z"}, LibDirs: []string{"lib"}, IncludeDirs: []string{"include"}},
		SourceHash: "0123456789abcdef",
	}
}

func TestStore_PublishAndLookup(t *testing.T) {
	root := t.TempDir()
	store := cas.NewStore(root)
	artifact := newArtifact(t, map[string]string{
		"include/zlib.h": "header",
		"lib/libz.a":     "archive",
	})

	record, err := store.Publish(context.Background(), artifact)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, artifact.ID(), record.ID)
	assert.Equal(t, filepath.Join(store.Dir(artifact.ID()), cas.ArchiveName), record.Archive)
	assert.Equal(t, []string{"z"}, record.Info.Libs)
	assert.Equal(t, "0123456789abcdef", record.SourceHash)
	assert.False(t, record.Timestamp.IsZero())
	require.NoError(t, record.Digest.Validate())
	assert.FileExists(t, filepath.Join(store.Dir(artifact.ID()), cas.RecordName))

	// A fresh store instance reads the record from disk.
	reopened := cas.NewStore(root)
	found, err := reopened.Lookup(artifact.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, record.Digest, found.Digest)
	assert.Equal(t, record.Files, found.Files)
}

func TestStore_LookupNotFound(t *testing.T) {
	store := cas.NewStore(t.TempDir())

	record, err := store.Lookup(domain.PackageID{Name: "zlib", Version: "1.3", ConfigKey: zlibKey})
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStore_LayoutSeparatesConfigurations(t *testing.T) {
	store := cas.NewStore(t.TempDir())
	a := domain.PackageID{Name: "zlib", Version: "1.3", ConfigKey: zlibKey}
	b := domain.PackageID{Name: "zlib", Version: "1.3", ConfigKey: zlibKey + ";extra=1"}

	assert.NotEqual(t, store.Dir(a), store.Dir(b))
	assert.Equal(t, filepath.Dir(store.Dir(a)), filepath.Dir(store.Dir(b)))
}

func TestStore_RepublishReplaces(t *testing.T) {
	root := t.TempDir()
	store := cas.NewStore(root)

	first, err := store.Publish(context.Background(), newArtifact(t, map[string]string{"lib/libz.a": "v1"}))
	require.NoError(t, err)

	second, err := store.Publish(context.Background(), newArtifact(t, map[string]string{"lib/libz.a": "v2"}))
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest, second.Digest)

	found, err := cas.NewStore(root).Lookup(second.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, second.Digest, found.Digest)
}

func TestStore_PublishInvalidIdentity(t *testing.T) {
	store := cas.NewStore(t.TempDir())
	artifact := newArtifact(t, map[string]string{"lib/libz.a": "archive"})
	artifact.ConfigKey = ""

	_, err := store.Publish(context.Background(), artifact)
	require.ErrorIs(t, err, domain.ErrStoreFailed)
	var storeErr *domain.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "publish", storeErr.Op)
}

func TestStore_PublishChangedFile(t *testing.T) {
	store := cas.NewStore(t.TempDir())
	artifact := newArtifact(t, map[string]string{"lib/libz.a": "archive"})
	require.NoError(t, os.WriteFile(filepath.Join(artifact.Root, "lib", "libz.a"), []byte("tampered"), 0o644))

	_, err := store.Publish(context.Background(), artifact)
	require.ErrorIs(t, err, domain.ErrStoreFailed)

	record, err := store.Lookup(artifact.ID())
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStore_PublishCanceled(t *testing.T) {
	store := cas.NewStore(t.TempDir())
	artifact := newArtifact(t, map[string]string{"lib/libz.a": "archive"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Publish(ctx, artifact)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, domain.ErrStoreFailed)
}

func TestStore_Restore(t *testing.T) {
	store := cas.NewStore(t.TempDir())
	artifact := newArtifact(t, map[string]string{
		"include/zlib.h": "header",
		"lib/libz.a":     "archive",
	})
	target := filepath.Join(artifact.Root, "lib", "libz.so")
	require.NoError(t, os.Symlink("libz.a", target))
	artifact.Files = append(artifact.Files, domain.ArtifactFile{Path: "lib/libz.so", Mode: 0o777, Link: "libz.a"})

	_, err := store.Publish(context.Background(), artifact)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, store.Restore(context.Background(), artifact.ID(), dest))

	//nolint:gosec // Test file path
	data, err := os.ReadFile(filepath.Join(dest, "lib", "libz.a"))
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))

	link, err := os.Readlink(filepath.Join(dest, "lib", "libz.so"))
	require.NoError(t, err)
	assert.Equal(t, "libz.a", link)

	// Restoring again over the same directory replaces entries in place.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "lib", "libz.a"), []byte("stale"), 0o600))
	require.NoError(t, store.Restore(context.Background(), artifact.ID(), dest))

	//nolint:gosec // Test file path
	data, err = os.ReadFile(filepath.Join(dest, "lib", "libz.a"))
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))

	link, err = os.Readlink(filepath.Join(dest, "lib", "libz.so"))
	require.NoError(t, err)
	assert.Equal(t, "libz.a", link)
}

func TestStore_RestoreDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	artifact := newArtifact(t, map[string]string{"lib/libz.a": "archive"})

	record, err := cas.NewStore(root).Publish(context.Background(), artifact)
	require.NoError(t, err)

	record.Digest = digest.FromString("something else")
	data, err := json.Marshal(record)
	require.NoError(t, err)
	recordPath := filepath.Join(filepath.Dir(record.Archive), cas.RecordName)
	require.NoError(t, os.WriteFile(recordPath, data, 0o644))

	dest := t.TempDir()
	err = cas.NewStore(root).Restore(context.Background(), artifact.ID(), dest)
	require.ErrorIs(t, err, domain.ErrStoreCorrupt)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is unpacked from an archive that fails verification")
}

func TestStore_RestoreNotFound(t *testing.T) {
	store := cas.NewStore(t.TempDir())

	err := store.Restore(context.Background(), domain.PackageID{Name: "zlib", Version: "1.3", ConfigKey: zlibKey}, t.TempDir())
	require.ErrorIs(t, err, domain.ErrPackageNotFound)
	require.ErrorIs(t, err, domain.ErrStoreFailed)
}
