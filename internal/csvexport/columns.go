package csvexport

import (
	"sort"
	"strconv"
	"strings"

	"github.com/data-power-io/commerce-export/internal/commerce"
)

// column renders one CSV cell of a product.
type column func(p commerce.ProductRecord, f *formatter) string

type formatter struct {
	mediaBaseURL string
	separator    string
}

var columns = map[string]column{
	commerce.FieldSKU:  func(p commerce.ProductRecord, _ *formatter) string { return p.SKU },
	commerce.FieldName: func(p commerce.ProductRecord, _ *formatter) string { return p.Name },
	commerce.FieldPrice: func(p commerce.ProductRecord, _ *formatter) string {
		return p.Price.StringFixed(2)
	},
	commerce.FieldStatus: func(p commerce.ProductRecord, _ *formatter) string {
		return p.Status.String()
	},
	commerce.FieldTypeID: func(p commerce.ProductRecord, _ *formatter) string { return p.TypeID },
	commerce.FieldVisibility: func(p commerce.ProductRecord, _ *formatter) string {
		return p.Visibility.String()
	},
	commerce.FieldCreatedAt: func(p commerce.ProductRecord, _ *formatter) string { return p.CreatedAt },
	commerce.FieldUpdatedAt: func(p commerce.ProductRecord, _ *formatter) string { return p.UpdatedAt },
	commerce.FieldURLKey: func(p commerce.ProductRecord, _ *formatter) string {
		return attribute(p, "url_key")
	},
	commerce.FieldCategories: func(p commerce.ProductRecord, f *formatter) string {
		names := make([]string, 0, len(p.Categories))
		for _, c := range p.Categories {
			names = append(names, c.Name)
		}
		return strings.Join(names, f.separator)
	},
	commerce.FieldCategoryIDs: func(p commerce.ProductRecord, f *formatter) string {
		return strings.Join(p.CategoryIDSet(), f.separator)
	},
	commerce.FieldQty: func(p commerce.ProductRecord, _ *formatter) string {
		return strconv.Itoa(p.Inventory.Quantity)
	},
	commerce.FieldInStock: func(p commerce.ProductRecord, _ *formatter) string {
		return strconv.FormatBool(p.Inventory.InStock)
	},
	commerce.FieldImageURL: func(p commerce.ProductRecord, f *formatter) string {
		main, _ := f.images(p)
		return main
	},
	commerce.FieldAdditionalImageURLs: func(p commerce.ProductRecord, f *formatter) string {
		_, rest := f.images(p)
		return strings.Join(rest, f.separator)
	},
}

// lookupColumn resolves a field name, including attr:<code> columns.
func lookupColumn(name string) (column, bool) {
	if code, ok := strings.CutPrefix(name, commerce.AttributePrefix); ok && code != "" {
		return func(p commerce.ProductRecord, _ *formatter) string {
			return attribute(p, code)
		}, true
	}
	c, ok := columns[name]
	return c, ok
}

func attribute(p commerce.ProductRecord, code string) string {
	a, ok := p.Attribute(code)
	if !ok {
		return ""
	}
	return a.String()
}

// images returns the main image URL and the remaining enabled image URLs in
// gallery position order. The main image is the entry tagged "image", or the
// first enabled one.
func (f *formatter) images(p commerce.ProductRecord) (string, []string) {
	entries := make([]commerce.MediaEntry, 0, len(p.MediaGalleryEntries))
	for _, e := range p.MediaGalleryEntries {
		if !e.Disabled && e.File != "" && (e.MediaType == "" || e.MediaType == "image") {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return "", nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})

	mainIdx := 0
	for i, e := range entries {
		if hasType(e, "image") {
			mainIdx = i
			break
		}
	}

	main := f.mediaURL(entries[mainIdx].File)
	rest := make([]string, 0, len(entries)-1)
	for i, e := range entries {
		if i != mainIdx {
			rest = append(rest, f.mediaURL(e.File))
		}
	}
	return main, rest
}

func (f *formatter) mediaURL(file string) string {
	if strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://") {
		return file
	}
	if f.mediaBaseURL == "" {
		return file
	}
	return strings.TrimSuffix(f.mediaBaseURL, "/") + "/" + strings.TrimPrefix(file, "/")
}

func hasType(e commerce.MediaEntry, t string) bool {
	for _, et := range e.Types {
		if et == t {
			return true
		}
	}
	return false
}
