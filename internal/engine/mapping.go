package engine

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/bayardsearch/bayard/internal/schema"
)

// bleveTokenizer translates spec.md §1's external tokenizer vocabulary (raw,
// simple, ngram, whitespace, cjk) onto the bleve tokenizer that produces the
// matching token stream: "raw" takes the whole field value as one token
// ("single"), "simple", "ngram" and "cjk" split on unicode word boundaries
// before any filtering, and "whitespace" is registered under its own name.
var bleveTokenizer = map[string]string{
	"raw":        "single",
	"simple":     "unicode",
	"ngram":      "unicode",
	"whitespace": "whitespace",
	"cjk":        "unicode",
}

// bleveFilter translates a filter name from the external analyzer
// vocabulary onto the bleve token filter registered under bleve's own name.
var bleveFilter = map[string]string{
	"lower_case": "to_lower",
	"stop_words": "stop_en",
	"ngram":      "ngram",
}

// buildMapping translates an index's declared schema and analyzer set into
// a bleve index mapping. The tokenizer/filter internals named in the
// analyzer set (raw, simple, ngram, whitespace, cjk) are the out-of-scope
// externals of spec.md §1; bleve ships equivalents as built-in tokenizers,
// token filters, and (for cjk) a full analyzer, so registering a custom
// analyzer here is a matter of translating names, not implementing analysis.
func buildMapping(sc schema.Schema, analyzers schema.AnalyzerSet) (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	for name, az := range analyzers {
		if az.Tokenizer == "cjk" && len(az.Filters) == 0 {
			// bleve already registers a complete "cjk" analyzer (unicode
			// tokenizer + cjk_width + to_lower + cjk_bigram). Alias the
			// declared name straight to it instead of reassembling its
			// filter chain as a custom analyzer.
			if err := im.AddCustomAnalyzer(name, map[string]interface{}{
				"type": "cjk",
			}); err != nil {
				return nil, fmt.Errorf("engine: register analyzer %q: %w", name, err)
			}
			continue
		}
		tokenizerName, ok := bleveTokenizer[az.Tokenizer]
		if !ok {
			tokenizerName = az.Tokenizer // pass through: caller named a bleve tokenizer directly
		}
		cfg := map[string]interface{}{
			"type":      "custom",
			"tokenizer": tokenizerName,
		}
		if len(az.Filters) > 0 {
			filters := make([]interface{}, len(az.Filters))
			for i, f := range az.Filters {
				if mapped, ok := bleveFilter[f]; ok {
					filters[i] = mapped
				} else {
					filters[i] = f
				}
			}
			cfg["token_filters"] = filters
		}
		if err := im.AddCustomAnalyzer(name, cfg); err != nil {
			return nil, fmt.Errorf("engine: register analyzer %q: %w", name, err)
		}
	}

	doc := bleve.NewDocumentMapping()
	for _, f := range sc.Fields {
		fm, err := fieldMapping(f)
		if err != nil {
			return nil, err
		}
		doc.AddFieldMappingsAt(f.Name, fm)
	}
	im.DefaultMapping = doc
	return im, nil
}

func fieldMapping(f schema.Field) (*mapping.FieldMapping, error) {
	switch f.Type {
	case schema.FieldText:
		fm := bleve.NewTextFieldMapping()
		fm.Store = f.Stored
		fm.Index = f.Indexed
		fm.IncludeInAll = f.Indexed
		if f.Analyzer != "" {
			fm.Analyzer = f.Analyzer
		}
		return fm, nil
	case schema.FieldU64, schema.FieldI64, schema.FieldF64:
		fm := bleve.NewNumericFieldMapping()
		fm.Store = f.Stored
		fm.DocValues = f.Fast
		return fm, nil
	case schema.FieldBool:
		fm := bleve.NewBooleanFieldMapping()
		fm.Store = f.Stored
		return fm, nil
	case schema.FieldDate:
		fm := bleve.NewDateTimeFieldMapping()
		fm.Store = f.Stored
		fm.DocValues = f.Fast
		return fm, nil
	case schema.FieldBytes:
		fm := bleve.NewTextFieldMapping()
		fm.Store = f.Stored
		fm.Index = false
		fm.IncludeInAll = false
		return fm, nil
	default:
		return nil, fmt.Errorf("engine: unsupported field type %q", f.Type)
	}
}
