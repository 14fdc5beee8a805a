package commerce

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFields(t *testing.T) {
	fs, err := ParseFields([]string{"sku", " name ", "sku", "attr:color"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "name", "attr:color"}, fs.Names())
	assert.True(t, fs.Has("attr:color"))

	_, err = ParseFields([]string{"sku", "colour"})
	assert.ErrorContains(t, err, `unknown export field "colour"`)

	_, err = ParseFields([]string{"attr:"})
	assert.Error(t, err)

	fs, err = ParseFields(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFields, fs.Names())
}

func TestFieldSetWants(t *testing.T) {
	fs := MustParseFields(FieldSKU, FieldQty)
	assert.True(t, fs.WantsInventory())
	assert.False(t, fs.WantsImages())
	assert.False(t, fs.WantsCategories())

	fs = MustParseFields(FieldAdditionalImageURLs, FieldCategoryIDs)
	assert.True(t, fs.WantsImages())
	assert.True(t, fs.WantsCategories())
}

func TestAPIFields(t *testing.T) {
	fs := MustParseFields(FieldSKU, FieldPrice, FieldImageURL, FieldCategories, "attr:color")
	assert.Equal(t,
		"items[id,sku,price,media_gallery_entries,category_ids,extension_attributes[category_links],custom_attributes],total_count",
		fs.APIFields())
}

func sampleProduct() ProductRecord {
	return ProductRecord{
		ID:          1,
		SKU:         "A",
		Name:        "Shirt",
		Price:       decimal.RequireFromString("10.5"),
		Status:      1,
		CategoryIDs: []ID{"3"},
		MediaGalleryEntries: []MediaEntry{
			{File: "/a.jpg"},
		},
		CustomAttributes: []CustomAttribute{
			{AttributeCode: "color", Value: json.RawMessage(`"red"`)},
			{AttributeCode: "url_key", Value: json.RawMessage(`"shirt"`)},
			{AttributeCode: "category_ids", Value: json.RawMessage(`["4"]`)},
			{AttributeCode: "description", Value: json.RawMessage(`"long text"`)},
		},
	}
}

func TestProjectDropsUnrequested(t *testing.T) {
	got := Project(sampleProduct(), MustParseFields(FieldSKU, FieldName))
	assert.Equal(t, "A", got.SKU)
	assert.Equal(t, "Shirt", got.Name)
	assert.True(t, got.Price.IsZero())
	assert.Empty(t, got.MediaGalleryEntries)
	assert.Empty(t, got.CustomAttributes)
	assert.Empty(t, got.CategoryIDs)
}

func TestProjectKeepsMediaForImageFields(t *testing.T) {
	got := Project(sampleProduct(), MustParseFields(FieldSKU, FieldAdditionalImageURLs))
	assert.Len(t, got.MediaGalleryEntries, 1)
}

func TestProjectKeepsAttributeSources(t *testing.T) {
	got := Project(sampleProduct(), MustParseFields(FieldSKU, FieldURLKey, FieldCategories, "attr:color"))
	codes := make([]string, 0, len(got.CustomAttributes))
	for _, a := range got.CustomAttributes {
		codes = append(codes, a.AttributeCode)
	}
	assert.ElementsMatch(t, []string{"color", "url_key", "category_ids"}, codes)
	assert.Equal(t, []string{"3", "4"}, got.CategoryIDSet())
}
