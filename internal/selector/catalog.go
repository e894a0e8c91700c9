package selector

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Emoji is one catalog entry: a description ranked against message text
// and the glyphs that express it.
type Emoji struct {
	Description string   `yaml:"description"`
	Glyphs      []string `yaml:"glyphs"`
}

type Catalog []Emoji

// Documents returns the descriptions in catalog order.
func (c Catalog) Documents() []string {
	docs := make([]string, len(c))
	for i, e := range c {
		docs[i] = e.Description
	}
	return docs
}

// LoadCatalog reads a YAML list of emoji entries.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emoji catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse emoji catalog %s: %w", path, err)
	}
	for i := range c {
		c[i].Description = strings.TrimSpace(c[i].Description)
		if c[i].Description == "" || len(c[i].Glyphs) == 0 {
			return nil, fmt.Errorf("emoji catalog %s: entry %d needs a description and at least one glyph", path, i)
		}
	}
	return c, nil
}

// DefaultCatalog is used by bots that do not name a catalog file.
func DefaultCatalog() Catalog {
	return Catalog{
		{Description: "laughter, something funny, a joke", Glyphs: []string{"😂", "🤣", "😆"}},
		{Description: "happiness, joy, good news", Glyphs: []string{"😄", "😊"}},
		{Description: "sadness, grief, bad news", Glyphs: []string{"😢", "😞"}},
		{Description: "love, affection, thanks", Glyphs: []string{"❤️", "🥰", "🙏"}},
		{Description: "anger, frustration, complaints", Glyphs: []string{"😠", "😤"}},
		{Description: "surprise, shock, disbelief", Glyphs: []string{"😮", "🤯"}},
		{Description: "agreement, approval, well done", Glyphs: []string{"👍", "👏"}},
		{Description: "food, cooking, eating, hunger", Glyphs: []string{"🍕", "🍜", "🍔"}},
		{Description: "music, songs, concerts, listening", Glyphs: []string{"🎵", "🎧"}},
		{Description: "celebration, party, birthday", Glyphs: []string{"🎉", "🥳"}},
		{Description: "tiredness, sleep, night", Glyphs: []string{"😴", "🌙"}},
		{Description: "thinking, confusion, a hard question", Glyphs: []string{"🤔"}},
	}
}
