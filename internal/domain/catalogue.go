package domain

// EntryKind distinguishes the two catalogues of tradable items. Simple items
// carry at most one prismatic gem; couriers carry one prismatic and one
// ethereal gem.
type EntryKind string

const (
	EntrySimple  EntryKind = "simple"
	EntryCourier EntryKind = "courier"
)

// CatalogueEntry is a single monitored market hash name.
type CatalogueEntry struct {
	Name string
	Kind EntryKind
}

// GemKind is the gem sub-type. Every courier socket holds one of each kind;
// simple items hold prismatic only.
type GemKind string

const (
	GemPrismatic GemKind = "Prismatic"
	GemEthereal  GemKind = "Ethereal"
)

// GemRef identifies a monitored gem together with the item_nameid Steam uses
// for its order histogram endpoint.
type GemRef struct {
	Name       string // bare name, e.g. "Reflection's Shade"
	Kind       GemKind
	ExternalID int64 // Steam item_nameid
}

// QualifiedName returns the namespaced gem name used as the storage key,
// e.g. "Prismatic: Reflection's Shade".
func (g GemRef) QualifiedName() string {
	return QualifyGemName(g.Kind, g.Name)
}

// QualifyGemName prefixes a bare gem name with its kind namespace. Gem rows
// are keyed by this form so a prismatic and an ethereal gem with the same
// bare name can never collide.
func QualifyGemName(kind GemKind, name string) string {
	return string(kind) + ": " + name
}

// Catalogue is the full externally-configured watch list: the item and
// courier entries plus the gem allow-lists with their histogram ids.
type Catalogue struct {
	Items     []CatalogueEntry
	Couriers  []CatalogueEntry
	Prismatic []GemRef
	Ethereal  []GemRef
}

// Entries returns items and couriers as one slice, items first.
func (c Catalogue) Entries() []CatalogueEntry {
	out := make([]CatalogueEntry, 0, len(c.Items)+len(c.Couriers))
	out = append(out, c.Items...)
	out = append(out, c.Couriers...)
	return out
}

// Gems returns the combined gem allow-list, ethereal first to mirror the
// fetch order used by the gem pool.
func (c Catalogue) Gems() []GemRef {
	out := make([]GemRef, 0, len(c.Ethereal)+len(c.Prismatic))
	out = append(out, c.Ethereal...)
	out = append(out, c.Prismatic...)
	return out
}

// AllowedPrismatic reports whether the bare name is on the prismatic
// allow-list.
func (c Catalogue) AllowedPrismatic(name string) bool {
	return containsGem(c.Prismatic, name)
}

// AllowedEthereal reports whether the bare name is on the ethereal
// allow-list.
func (c Catalogue) AllowedEthereal(name string) bool {
	return containsGem(c.Ethereal, name)
}

// IsCourier reports whether the market hash name is a courier entry.
func (c Catalogue) IsCourier(marketName string) bool {
	for _, e := range c.Couriers {
		if e.Name == marketName {
			return true
		}
	}
	return false
}

func containsGem(refs []GemRef, name string) bool {
	for _, r := range refs {
		if r.Name == name {
			return true
		}
	}
	return false
}
