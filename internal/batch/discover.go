// Package batch runs the classifier over a labeled dataset laid out as
// <root>/{real,synthetic}/{eye,face,video}/ and reports its accuracy.
package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"pupil-biou/internal/classify"
)

// Item is one dataset file.
type Item struct {
	Path  string
	Label classify.Label
	Mode  classify.Mode
}

// Name is the file name shown in reports.
func (it Item) Name() string {
	return filepath.Base(it.Path)
}

// Discover lists the dataset files under root in (label, mode, name) order.
// Missing category directories are skipped; files the mode cannot read are
// ignored.
func Discover(root string) ([]Item, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("dataset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset root %s is not a directory", root)
	}

	var items []Item
	for _, label := range classify.Labels {
		for _, mode := range classify.Modes {
			dir := filepath.Join(root, string(label), string(mode))
			entries, err := os.ReadDir(dir)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", dir, err)
			}
			for _, e := range entries {
				if !e.Type().IsRegular() || !mode.Accepts(e.Name()) {
					continue
				}
				items = append(items, Item{Path: filepath.Join(dir, e.Name()), Label: label, Mode: mode})
			}
		}
	}
	sortItems(items, func(i int) Item { return items[i] })
	return items, nil
}

// OutputDir is where result images for a category are written.
func OutputDir(out string, label classify.Label, mode classify.Mode) string {
	return filepath.Join(out, string(label), string(mode))
}

func rank[T comparable](list []T, v T) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return len(list)
}

func less(a, b Item) bool {
	if ra, rb := rank(classify.Labels, a.Label), rank(classify.Labels, b.Label); ra != rb {
		return ra < rb
	}
	if ra, rb := rank(classify.Modes, a.Mode), rank(classify.Modes, b.Mode); ra != rb {
		return ra < rb
	}
	return a.Name() < b.Name()
}

func sortItems[T any](s []T, item func(i int) Item) {
	sort.SliceStable(s, func(i, j int) bool { return less(item(i), item(j)) })
}
