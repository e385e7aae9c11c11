package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

//go:embed catalogue.toml
var defaultCatalogue []byte

// catalogueFile is the TOML shape of the watch list.
type catalogueFile struct {
	Items     []string   `toml:"items"`
	Couriers  []string   `toml:"couriers"`
	Prismatic []gemEntry `toml:"prismatic"`
	Ethereal  []gemEntry `toml:"ethereal"`
}

type gemEntry struct {
	Name string `toml:"name"`
	ID   int64  `toml:"id"` // Steam item_nameid for the histogram endpoint
}

// LoadCatalogue reads the watch list from path, or from the embedded default
// catalogue when path is empty.
func LoadCatalogue(path string) (domain.Catalogue, error) {
	data := defaultCatalogue
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return domain.Catalogue{}, fmt.Errorf("config: read catalogue %q: %w", path, err)
		}
		data = b
	}

	var file catalogueFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return domain.Catalogue{}, fmt.Errorf("config: parse catalogue: %w", err)
	}

	cat := domain.Catalogue{
		Items:     entries(file.Items, domain.EntrySimple),
		Couriers:  entries(file.Couriers, domain.EntryCourier),
		Prismatic: gems(file.Prismatic, domain.GemPrismatic),
		Ethereal:  gems(file.Ethereal, domain.GemEthereal),
	}

	if len(cat.Items)+len(cat.Couriers) == 0 {
		return domain.Catalogue{}, fmt.Errorf("config: catalogue has no items or couriers")
	}
	if len(cat.Prismatic)+len(cat.Ethereal) == 0 {
		return domain.Catalogue{}, fmt.Errorf("config: catalogue has no gems")
	}
	return cat, nil
}

func entries(names []string, kind domain.EntryKind) []domain.CatalogueEntry {
	out := make([]domain.CatalogueEntry, 0, len(names))
	for _, n := range names {
		out = append(out, domain.CatalogueEntry{Name: n, Kind: kind})
	}
	return out
}

func gems(in []gemEntry, kind domain.GemKind) []domain.GemRef {
	out := make([]domain.GemRef, 0, len(in))
	for _, g := range in {
		out = append(out, domain.GemRef{Name: g.Name, Kind: kind, ExternalID: g.ID})
	}
	return out
}
