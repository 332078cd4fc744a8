package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping declares the event document fields. Title and
// description get English stemming; category, country and visibility are
// exact keywords.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = en.AnalyzerName
	titleField.Store = true
	titleField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("title", titleField)

	descField := bleve.NewTextFieldMapping()
	descField.Analyzer = en.AnalyzerName
	descField.Store = true
	descField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("description", descField)

	for _, name := range []string{"category", "country", "event_id"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		docMapping.AddFieldMappingsAt(name, f)
	}

	visibilityField := bleve.NewTextFieldMapping()
	visibilityField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("visibility", visibilityField)

	dateField := bleve.NewNumericFieldMapping()
	dateField.Store = true
	docMapping.AddFieldMappingsAt("date", dateField)

	personalField := bleve.NewBooleanFieldMapping()
	personalField.Store = true
	docMapping.AddFieldMappingsAt("personal", personalField)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
