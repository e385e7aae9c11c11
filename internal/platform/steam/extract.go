package steam

import (
	"html"
	"strings"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

const (
	prismaticMarker = "Prismatic Gem"
	etherealMarker  = "Ethereal Gem"
	emptySocket     = "Empty Socket"
)

// Stock gems that ship with the item itself and carry no resale value.
var stockGems = map[string]string{
	"Swine of the Sunken Galley":   "Explosive Burst",
	"Fractal Horns of Inner Abysm": "Reflection's Shade",
}

// Extractor pulls socketed gem names out of listing descriptions and
// normalises listings into scanner items. Gem names are validated against
// the catalogue allow-lists; anything off-list is treated as absent.
type Extractor struct {
	cat domain.Catalogue
}

// NewExtractor creates an Extractor over the given catalogue.
func NewExtractor(cat domain.Catalogue) *Extractor {
	return &Extractor{cat: cat}
}

// Extract converts a listing into an item. ok is false when the listing
// carries no recognised gem and should be skipped.
func (e *Extractor) Extract(l domain.Listing) (domain.Item, bool) {
	item := domain.Item{
		ID:         l.ID,
		Name:       l.Name,
		Price:      l.Price,
		ObservedAt: l.FetchedAt,
	}

	if e.cat.IsCourier(l.Name) {
		for _, blob := range l.GemHTML {
			eth, pris := e.extractCourierGems(gemText(blob))
			if eth != "" {
				item.EtherealGem = domain.QualifyGemName(domain.GemEthereal, eth)
			}
			if pris != "" {
				item.PrismaticGem = domain.QualifyGemName(domain.GemPrismatic, pris)
			}
		}
	} else if len(l.GemHTML) > 0 {
		// Simple items socket at most one prismatic gem; only the first gem
		// description counts.
		text := gemText(l.GemHTML[0])
		if name := e.extractSimpleGem(l.Name, text); name != "" {
			item.PrismaticGem = domain.QualifyGemName(domain.GemPrismatic, name)
		}
	}

	return item, item.HasGems()
}

// extractSimpleGem finds the allow-listed prismatic gem in a simple item's
// gem text, excluding the stock gem the item ships with.
func (e *Extractor) extractSimpleGem(itemName, text string) string {
	for base, stock := range stockGems {
		if strings.Contains(itemName, base) && strings.Contains(text, stock) {
			return ""
		}
	}
	for _, ref := range e.cat.Prismatic {
		if strings.Contains(text, ref.Name) {
			return ref.Name
		}
	}
	return ""
}

// extractCourierGems parses a courier gem text holding up to one gem of each
// kind. The text lays out "<name> Prismatic Gem" and "<name> Ethereal Gem"
// segments in socket order, so the earlier marker is consumed first and the
// remainder re-scanned for the other kind.
func (e *Extractor) extractCourierGems(text string) (ethereal, prismatic string) {
	pIdx := strings.Index(text, prismaticMarker)
	eIdx := strings.Index(text, etherealMarker)

	if pIdx >= 0 && (eIdx < 0 || pIdx < eIdx) {
		name := strings.TrimSpace(text[:pIdx])
		if e.cat.AllowedPrismatic(name) {
			prismatic = name
		}
		text = strings.TrimSpace(text[pIdx+len(prismaticMarker):])
	} else if eIdx >= 0 {
		name := strings.TrimSpace(text[:eIdx])
		if e.cat.AllowedEthereal(name) {
			ethereal = name
		}
		text = strings.TrimSpace(text[eIdx+len(etherealMarker):])
	}

	if i := strings.Index(text, prismaticMarker); i >= 0 && prismatic == "" {
		name := strings.TrimSpace(text[:i])
		if e.cat.AllowedPrismatic(name) {
			prismatic = name
		}
	}
	if i := strings.Index(text, etherealMarker); i >= 0 && ethereal == "" {
		name := strings.TrimSpace(text[:i])
		if e.cat.AllowedEthereal(name) {
			ethereal = name
		}
	}
	return ethereal, prismatic
}

// gemText strips markup from a gem description blob and drops empty-socket
// placeholders, leaving the bare "<name> <kind> Gem" text.
func gemText(blob string) string {
	text := html.UnescapeString(stripTags(blob))
	text = strings.ReplaceAll(text, emptySocket, "")
	return strings.TrimSpace(text)
}

// stripTags removes HTML tags from a description fragment. Steam gem blobs
// are flat span/br markup, never nested documents, so a linear scan is
// enough.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
