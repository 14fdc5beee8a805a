package commerce

import (
	"fmt"
	"strings"
)

// Export field names. Attribute columns use AttributePrefix + attribute code.
const (
	FieldSKU                 = "sku"
	FieldName                = "name"
	FieldPrice               = "price"
	FieldStatus              = "status"
	FieldTypeID              = "type_id"
	FieldVisibility          = "visibility"
	FieldCreatedAt           = "created_at"
	FieldUpdatedAt           = "updated_at"
	FieldURLKey              = "url_key"
	FieldCategories          = "categories"
	FieldCategoryIDs         = "category_ids"
	FieldQty                 = "qty"
	FieldInStock             = "in_stock"
	FieldImageURL            = "image_url"
	FieldAdditionalImageURLs = "additional_image_urls"

	AttributePrefix = "attr:"
)

// DefaultFields is the column order used when none is configured.
var DefaultFields = []string{
	FieldSKU,
	FieldName,
	FieldPrice,
	FieldStatus,
	FieldCategories,
	FieldQty,
	FieldInStock,
	FieldImageURL,
	FieldUpdatedAt,
}

var knownFields = map[string]bool{
	FieldSKU: true, FieldName: true, FieldPrice: true, FieldStatus: true,
	FieldTypeID: true, FieldVisibility: true, FieldCreatedAt: true,
	FieldUpdatedAt: true, FieldURLKey: true, FieldCategories: true,
	FieldCategoryIDs: true, FieldQty: true, FieldInStock: true,
	FieldImageURL: true, FieldAdditionalImageURLs: true,
}

// FieldSet is a validated, ordered list of export fields.
type FieldSet struct {
	names []string
	set   map[string]bool
	attrs []string
}

// ParseFields validates names and keeps their order. Duplicates are dropped.
func ParseFields(names []string) (FieldSet, error) {
	if len(names) == 0 {
		names = DefaultFields
	}
	fs := FieldSet{set: make(map[string]bool, len(names))}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || fs.set[name] {
			continue
		}
		if strings.HasPrefix(name, AttributePrefix) {
			code := strings.TrimPrefix(name, AttributePrefix)
			if code == "" {
				return FieldSet{}, fmt.Errorf("field %q: empty attribute code", raw)
			}
			fs.attrs = append(fs.attrs, code)
		} else if !knownFields[name] {
			return FieldSet{}, fmt.Errorf("unknown export field %q", raw)
		}
		fs.set[name] = true
		fs.names = append(fs.names, name)
	}
	if len(fs.names) == 0 {
		return FieldSet{}, fmt.Errorf("no export fields configured")
	}
	return fs, nil
}

// MustParseFields is ParseFields for static field lists.
func MustParseFields(names ...string) FieldSet {
	fs, err := ParseFields(names)
	if err != nil {
		panic(err)
	}
	return fs
}

// Names returns the fields in column order.
func (f FieldSet) Names() []string {
	return append([]string(nil), f.names...)
}

// Has reports whether name was requested.
func (f FieldSet) Has(name string) bool { return f.set[name] }

// WantsImages reports whether any image column was requested.
func (f FieldSet) WantsImages() bool {
	return f.set[FieldImageURL] || f.set[FieldAdditionalImageURLs]
}

// WantsCategories reports whether category resolution is needed.
func (f FieldSet) WantsCategories() bool {
	return f.set[FieldCategories] || f.set[FieldCategoryIDs]
}

// WantsInventory reports whether inventory resolution is needed.
func (f FieldSet) WantsInventory() bool {
	return f.set[FieldQty] || f.set[FieldInStock]
}

// attributeCodes lists the custom attributes to keep after projection.
func (f FieldSet) attributeCodes() map[string]bool {
	codes := make(map[string]bool, len(f.attrs)+2)
	for _, c := range f.attrs {
		codes[c] = true
	}
	if f.set[FieldURLKey] {
		codes["url_key"] = true
	}
	if f.WantsCategories() {
		codes["category_ids"] = true
	}
	return codes
}

// APIFields renders the products "fields" query parameter so the backend only
// serialises what the export needs.
func (f FieldSet) APIFields() string {
	parts := []string{"id", "sku"}
	add := func(s string) {
		for _, p := range parts {
			if p == s {
				return
			}
		}
		parts = append(parts, s)
	}

	for _, name := range f.names {
		switch name {
		case FieldName, FieldPrice, FieldStatus, FieldTypeID, FieldVisibility, FieldCreatedAt, FieldUpdatedAt:
			add(name)
		case FieldCategories, FieldCategoryIDs:
			add("category_ids")
			add("extension_attributes[category_links]")
			add("custom_attributes")
		case FieldImageURL, FieldAdditionalImageURLs:
			add("media_gallery_entries")
		default:
			if name == FieldURLKey || strings.HasPrefix(name, AttributePrefix) {
				add("custom_attributes")
			}
		}
	}
	return "items[" + strings.Join(parts, ",") + "],total_count"
}

// Project drops everything the export will not read. media_gallery_entries
// survives only when an image field was requested, and only custom attributes
// that feed a column or category extraction are kept.
func Project(p ProductRecord, f FieldSet) ProductRecord {
	out := ProductRecord{
		ID:  p.ID,
		SKU: p.SKU,
	}
	if f.set[FieldName] {
		out.Name = p.Name
	}
	if f.set[FieldPrice] {
		out.Price = p.Price
	}
	if f.set[FieldStatus] {
		out.Status = p.Status
	}
	if f.set[FieldTypeID] {
		out.TypeID = p.TypeID
	}
	if f.set[FieldVisibility] {
		out.Visibility = p.Visibility
	}
	if f.set[FieldCreatedAt] {
		out.CreatedAt = p.CreatedAt
	}
	if f.set[FieldUpdatedAt] {
		out.UpdatedAt = p.UpdatedAt
	}
	if f.WantsCategories() {
		out.CategoryIDs = p.CategoryIDs
		out.ExtensionAttributes = p.ExtensionAttributes
	}
	if f.WantsImages() {
		out.MediaGalleryEntries = p.MediaGalleryEntries
	}

	codes := f.attributeCodes()
	if len(codes) > 0 {
		for _, a := range p.CustomAttributes {
			if codes[a.AttributeCode] {
				out.CustomAttributes = append(out.CustomAttributes, a)
			}
		}
	}
	return out
}

// String lists the fields, handy in logs.
func (f FieldSet) String() string {
	return strings.Join(f.names, ",")
}
