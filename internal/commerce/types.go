package commerce

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is an identifier the API sends either as a JSON number or a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int is an integer the API sends as a JSON number, a numeric string or null.
// Fractions are truncated; strings that are not numbers decode as zero.
type Int int

func (n *Int) UnmarshalJSON(data []byte) error {
	var id ID
	if err := id.UnmarshalJSON(data); err != nil {
		return err
	}
	if id == "" {
		*n = 0
		return nil
	}
	if v, err := strconv.Atoi(string(id)); err == nil {
		*n = Int(v)
		return nil
	}
	f, err := strconv.ParseFloat(string(id), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Int(f)
	return nil
}

func (n Int) String() string { return strconv.Itoa(int(n)) }

// MediaEntry is one element of media_gallery_entries.
type MediaEntry struct {
	ID        Int      `json:"id"`
	MediaType string   `json:"media_type"`
	Label     string   `json:"label"`
	Position  Int      `json:"position"`
	Disabled  bool     `json:"disabled"`
	Types     []string `json:"types"`
	File      string   `json:"file"`
}

// CustomAttribute is an EAV attribute; Value is a string or an array.
type CustomAttribute struct {
	AttributeCode string          `json:"attribute_code"`
	Value         json.RawMessage `json:"value"`
}

// Strings returns the attribute value as a list: arrays element-wise,
// comma-separated strings split, scalars as a single element.
func (a CustomAttribute) Strings() []string {
	raw := bytes.TrimSpace(a.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '[' {
		var ids []ID
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil
		}
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != "" {
				out = append(out, string(id))
			}
		}
		return out
	}

	var single ID
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(string(single), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// String returns a scalar value unchanged and joins arrays with commas.
func (a CustomAttribute) String() string {
	raw := bytes.TrimSpace(a.Value)
	if len(raw) > 0 && raw[0] == '[' {
		return strings.Join(a.Strings(), ",")
	}
	var single ID
	if err := json.Unmarshal(raw, &single); err != nil {
		return ""
	}
	return string(single)
}

// CategoryLink associates a product with a category.
type CategoryLink struct {
	CategoryID ID  `json:"category_id"`
	Position   Int `json:"position"`
}

// CategoryRef is a resolved category attached to a product.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// ProductRecord is a catalog product as returned by /products, plus the
// Categories and Inventory fields filled in by the Enricher.
type ProductRecord struct {
	ID                  Int               `json:"id,omitempty"`
	SKU                 string            `json:"sku"`
	Name                string            `json:"name,omitempty"`
	Price               decimal.Decimal   `json:"price"`
	Status              Int               `json:"status,omitempty"`
	TypeID              string            `json:"type_id,omitempty"`
	Visibility          Int               `json:"visibility,omitempty"`
	CreatedAt           string            `json:"created_at,omitempty"`
	UpdatedAt           string            `json:"updated_at,omitempty"`
	CategoryIDs         []ID              `json:"category_ids,omitempty"`
	MediaGalleryEntries []MediaEntry      `json:"media_gallery_entries,omitempty"`
	CustomAttributes    []CustomAttribute `json:"custom_attributes,omitempty"`

	// ExtensionAttributes is kept as sent. An empty map may arrive as [].
	ExtensionAttributes json.RawMessage `json:"extension_attributes,omitempty"`

	Categories []CategoryRef   `json:"categories,omitempty"`
	Inventory  InventoryRecord `json:"inventory"`
}

// Attribute returns the custom attribute with the given code.
func (p ProductRecord) Attribute(code string) (CustomAttribute, bool) {
	for _, a := range p.CustomAttributes {
		if a.AttributeCode == code {
			return a, true
		}
	}
	return CustomAttribute{}, false
}

// CategoryLinks reads extension_attributes.category_links. Anything that is
// not an object with a list of links yields nil.
func (p ProductRecord) CategoryLinks() []CategoryLink {
	raw := bytes.TrimSpace(p.ExtensionAttributes)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var ext struct {
		CategoryLinks []CategoryLink `json:"category_links"`
	}
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil
	}
	return ext.CategoryLinks
}

// CategoryIDSet returns the product's category IDs as the union of
// category_ids, extension_attributes.category_links and the category_ids
// custom attribute, de-duplicated in first-seen order.
func (p ProductRecord) CategoryIDSet() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, id := range p.CategoryIDs {
		add(string(id))
	}
	for _, link := range p.CategoryLinks() {
		add(string(link.CategoryID))
	}
	if attr, ok := p.Attribute("category_ids"); ok {
		for _, id := range attr.Strings() {
			add(id)
		}
	}
	return out
}

// CategoryRecord is the metadata of one category.
type CategoryRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	ParentID string `json:"parent_id"`
}

// InventoryRecord is the aggregated stock of one SKU.
type InventoryRecord struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	InStock  bool   `json:"in_stock"`
}

// Lookup is an enrichment result that either succeeded or fell back to a
// default value. Cause is set when Degraded is true.
type Lookup[T any] struct {
	Value    T
	Degraded bool
	Cause    error
}

// Ok wraps a successfully resolved value.
func Ok[T any](v T) Lookup[T] {
	return Lookup[T]{Value: v}
}

// Degrade wraps a default used in place of a failed lookup.
func Degrade[T any](def T, cause error) Lookup[T] {
	return Lookup[T]{Value: def, Degraded: true, Cause: cause}
}

// parseQuantity accepts the float quantities the inventory API returns.
func parseQuantity(raw json.Number) float64 {
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw.String(), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
