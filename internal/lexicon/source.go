package lexicon

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var defaultData embed.FS

// Source is one curated term list, usually one per language.
type Source struct {
	Language string   `yaml:"language"`
	High     []string `yaml:"high"`
	Medium   []string `yaml:"medium"`
	Low      []string `yaml:"low"`
}

// ParseSource decodes a YAML term list.
func ParseSource(data []byte) (Source, error) {
	var src Source
	if err := yaml.Unmarshal(data, &src); err != nil {
		return Source{}, fmt.Errorf("parse lexicon source: %w", err)
	}
	if src.Language == "" {
		src.Language = "default"
	}
	return src, nil
}

// LoadFile reads a YAML term list from disk.
func LoadFile(p string) (Source, error) {
	data, err := os.ReadFile(filepath.Clean(p))
	if err != nil {
		return Source{}, fmt.Errorf("read lexicon %s: %w", p, err)
	}
	src, err := ParseSource(data)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", p, err)
	}
	return src, nil
}

// LoadFiles reads several term lists in order.
func LoadFiles(paths ...string) ([]Source, error) {
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		src, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// DefaultSources returns the term lists embedded in the binary, sorted by language.
func DefaultSources() ([]Source, error) {
	entries, err := fs.ReadDir(defaultData, "data")
	if err != nil {
		return nil, fmt.Errorf("read embedded lexicon: %w", err)
	}
	out := make([]Source, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := defaultData.ReadFile(path.Join("data", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read embedded lexicon %s: %w", e.Name(), err)
		}
		src, err := ParseSource(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out, nil
}

// Default compiles the embedded term lists plus any extra files.
func Default(extraFiles ...string) (*Lexicon, error) {
	sources, err := DefaultSources()
	if err != nil {
		return nil, err
	}
	extra, err := LoadFiles(extraFiles...)
	if err != nil {
		return nil, err
	}
	return Compile(append(sources, extra...)...)
}
