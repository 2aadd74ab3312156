package channel

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"afterlive/internal/config"
)

// Catalog maps recorder areas to platform channels and platform channels to
// category ids.
type Catalog struct {
	Areas      []Area          `yaml:"areas"`
	Categories []CategoryGroup `yaml:"categories"`
}

// Area is a recorder parent area. Its channel wins over any child mapping.
type Area struct {
	Name     string      `yaml:"name"`
	Channel  []string    `yaml:"channel"`
	Children []AreaChild `yaml:"children"`
}

// AreaChild is a recorder child area.
type AreaChild struct {
	Name    string   `yaml:"name"`
	Channel []string `yaml:"channel"`
}

// CategoryGroup is a platform parent channel.
type CategoryGroup struct {
	Name     string     `yaml:"name"`
	Children []Category `yaml:"children"`
}

// Category is a platform child channel and its numeric id.
type Category struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
}

// LoadCatalog reads a YAML catalog. A missing file yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return &Catalog{}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()
	return ParseCatalog(file)
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := catalog.validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *Catalog) validate() error {
	for i, area := range c.Areas {
		if strings.TrimSpace(area.Name) == "" {
			return fmt.Errorf("catalog areas[%d]: name is required", i)
		}
		if _, err := config.ParseChannel(area.Channel); err != nil {
			return fmt.Errorf("catalog area %q: %w", area.Name, err)
		}
		for _, child := range area.Children {
			if _, err := config.ParseChannel(child.Channel); err != nil {
				return fmt.Errorf("catalog area %q/%q: %w", area.Name, child.Name, err)
			}
		}
	}
	for _, group := range c.Categories {
		for _, category := range group.Children {
			if category.ID <= 0 {
				return fmt.Errorf("catalog category %q/%q: id must be positive", group.Name, category.Name)
			}
		}
	}
	return nil
}

// AreaChannel returns the channel mapped for a recorder area, or nil. The
// parent entry's own channel is preferred over its child entries.
func (c *Catalog) AreaChannel(parent, child string) *config.Channel {
	if c == nil {
		return nil
	}
	for _, area := range c.Areas {
		if !sameName(area.Name, parent) {
			continue
		}
		if ch, _ := config.ParseChannel(area.Channel); ch != nil {
			return ch
		}
		for _, entry := range area.Children {
			if sameName(entry.Name, child) {
				ch, _ := config.ParseChannel(entry.Channel)
				return ch
			}
		}
		return nil
	}
	return nil
}

// CategoryID looks up the platform id for ch.
func (c *Catalog) CategoryID(ch config.Channel) (int, bool) {
	if c == nil {
		return 0, false
	}
	for _, group := range c.Categories {
		if !sameName(group.Name, ch.Parent) {
			continue
		}
		for _, category := range group.Children {
			if sameName(category.Name, ch.Child) {
				return category.ID, true
			}
		}
	}
	return 0, false
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
