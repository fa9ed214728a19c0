// Package corpus lists labeled images from a directory tree where every image is labeled by
// the name of the directory holding it.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"imwithroc.com/ensemble/ml"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Walk returns every image under root in lexical path order.
func Walk(fs afero.Fs, root string) ([]ml.Item, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %s is not a directory", root)
	}

	var items []ml.Item
	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !IsImage(path) {
			return nil
		}
		items = append(items, ml.Item{
			Path:  path,
			Label: filepath.Base(filepath.Dir(path)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Counts tallies items per label.
func Counts(items []ml.Item) map[string]int {
	counts := make(map[string]int)
	for _, it := range items {
		counts[it.Label]++
	}
	return counts
}
