package corpus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"imwithroc.com/ensemble/ml"
)

func TestWalk(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, p := range []string{
		"/data/train/dog/b.JPG",
		"/data/train/dog/a.png",
		"/data/train/cat/z.webp",
		"/data/train/cat/notes.txt",
		"/data/train/cat/nested/c.jpeg",
		"/data/train/loose.png",
	} {
		require.NoError(t, afero.WriteFile(fs, p, []byte("x"), 0o644))
	}

	items, err := Walk(fs, "/data/train")
	require.NoError(t, err)

	expected := []ml.Item{
		{Path: "/data/train/cat/nested/c.jpeg", Label: "nested"},
		{Path: "/data/train/cat/z.webp", Label: "cat"},
		{Path: "/data/train/dog/a.png", Label: "dog"},
		{Path: "/data/train/dog/b.JPG", Label: "dog"},
		{Path: "/data/train/loose.png", Label: "train"},
	}
	if diff := cmp.Diff(expected, items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, map[string]int{"nested": 1, "cat": 1, "dog": 2, "train": 1}, Counts(items))
}

func TestWalkErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file.png", []byte("x"), 0o644))

	_, err := Walk(fs, "/missing")
	require.Error(t, err)

	_, err = Walk(fs, "/file.png")
	require.Error(t, err)
}

func TestIsImage(t *testing.T) {
	require.True(t, IsImage("a.PNG"))
	require.True(t, IsImage("dir/a.jpeg"))
	require.False(t, IsImage("a.gif"))
	require.False(t, IsImage("png"))
}
