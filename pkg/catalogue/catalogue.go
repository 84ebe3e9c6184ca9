package catalogue

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed coins.yaml
var defaultCatalogueRaw []byte

var ErrEmptyCatalogue = goerr.New("catalogue has no coins")

type file struct {
	Coins []string `yaml:"coins"`
}

// Catalogue is the closed set of coin identifiers the system accepts.
// It is fixed after loading.
type Catalogue struct {
	ids []model.CoinID
	set map[model.CoinID]struct{}
}

// Default returns the built-in catalogue
func Default() (*Catalogue, error) {
	return Parse(bytes.NewReader(defaultCatalogueRaw))
}

// Load reads a catalogue YAML file. An empty path returns the built-in catalogue.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open catalogue file", goerr.V("path", path))
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse catalogue file", goerr.V("path", path))
	}
	return c, nil
}

// Parse decodes a catalogue document of the form `coins: [id, ...]`
func Parse(r io.Reader) (*Catalogue, error) {
	var doc file
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode catalogue")
	}

	return New(doc.Coins...)
}

// New builds a catalogue from identifiers. Identifiers are normalized to lower case
// and duplicates are ignored.
func New(ids ...string) (*Catalogue, error) {
	c := &Catalogue{
		set: make(map[model.CoinID]struct{}, len(ids)),
	}

	for _, raw := range ids {
		id := normalize(raw)
		if id == "" {
			continue
		}
		if _, ok := c.set[id]; ok {
			continue
		}
		c.set[id] = struct{}{}
		c.ids = append(c.ids, id)
	}

	if len(c.ids) == 0 {
		return nil, ErrEmptyCatalogue
	}
	return c, nil
}

func normalize(name string) model.CoinID {
	return model.CoinID(strings.ToLower(strings.TrimSpace(name)))
}

// Resolve maps a free-text name to a catalogue identifier
func (c *Catalogue) Resolve(name string) (model.CoinID, bool) {
	id := normalize(name)
	if _, ok := c.set[id]; !ok {
		return "", false
	}
	return id, true
}

// Contains reports whether id is a member of the catalogue
func (c *Catalogue) Contains(id model.CoinID) bool {
	_, ok := c.set[id]
	return ok
}

// IDs returns identifiers in catalogue order
func (c *Catalogue) IDs() []model.CoinID {
	out := make([]model.CoinID, len(c.ids))
	copy(out, c.ids)
	return out
}

func (c *Catalogue) Len() int {
	return len(c.ids)
}
