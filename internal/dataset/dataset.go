// Package dataset loads MM-SafetyBench-style question sets: a directory of
// per-category JSON files plus an image tree organized as
// <base>/<category>/<image type>/<index>.jpg.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Image types and the question field each one pairs with. The typo-embedded
// image variants carry a rephrased question; the plain diffusion image keeps
// the changed question.
var imageQuestionField = map[string]string{
	"SD":      "Changed Question",
	"SD_TYPO": "Rephrased Question",
	"TYPO":    "Rephrased Question(SD)",
}

// QuestionField returns the JSON field holding the question for an image
// type, or an error for unknown types.
func QuestionField(imageType string) (string, error) {
	field, ok := imageQuestionField[imageType]
	if !ok {
		return "", fmt.Errorf("unknown image type %q", imageType)
	}
	return field, nil
}

// Item is one dataset entry: a question paired with one rendering of its
// image.
type Item struct {
	Index     string
	Category  string
	Question  string
	ImagePath string
	ImageType string
}

// Load reads all question files matching the glob and returns the items for
// one image type. The file name (without extension) is the category; an
// empty categories filter means all categories.
func Load(jsonGlob, imageBase, imageType string, categories []string) ([]Item, error) {
	field, err := QuestionField(imageType)
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(jsonGlob)
	if err != nil {
		return nil, fmt.Errorf("bad dataset glob %q: %w", jsonGlob, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no dataset files match %q", jsonGlob)
	}
	sort.Strings(files)

	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}

	var items []Item
	for _, path := range files {
		category := categoryFromPath(path)
		if len(allowed) > 0 && !allowed[category] {
			continue
		}

		entries, err := readQuestionFile(path)
		if err != nil {
			return nil, err
		}

		// Entries are keyed by numeric string index; keep them ordered.
		indices := make([]string, 0, len(entries))
		for index := range entries {
			indices = append(indices, index)
		}
		sort.Slice(indices, func(i, j int) bool {
			a, errA := strconv.Atoi(indices[i])
			b, errB := strconv.Atoi(indices[j])
			if errA != nil || errB != nil {
				return indices[i] < indices[j]
			}
			return a < b
		})

		for _, index := range indices {
			question, _ := entries[index][field].(string)
			items = append(items, Item{
				Index:     index,
				Category:  category,
				Question:  question,
				ImagePath: filepath.Join(imageBase, category, imageType, index+".jpg"),
				ImageType: imageType,
			})
		}
	}

	return items, nil
}

// LoadInterleaved loads every requested image type and interleaves the
// results round-robin, so a small task cap still covers all types.
func LoadInterleaved(jsonGlob, imageBase string, imageTypes []string, categories []string) ([]Item, error) {
	if len(imageTypes) == 0 {
		imageTypes = []string{"SD"}
	}

	lists := make([][]Item, 0, len(imageTypes))
	for _, imageType := range imageTypes {
		items, err := Load(jsonGlob, imageBase, imageType, categories)
		if err != nil {
			return nil, fmt.Errorf("loading image type %s: %w", imageType, err)
		}
		lists = append(lists, items)
	}

	return interleave(lists), nil
}

// interleave takes one item from each list in turn until all are exhausted.
func interleave(lists [][]Item) []Item {
	total := 0
	for _, l := range lists {
		total += len(l)
	}

	out := make([]Item, 0, total)
	for pos := 0; len(out) < total; pos++ {
		for _, l := range lists {
			if pos < len(l) {
				out = append(out, l[pos])
			}
		}
	}
	return out
}

func categoryFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func readQuestionFile(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var entries map[string]map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return entries, nil
}
