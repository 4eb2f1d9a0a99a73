// Package query models the query DSL as a sum type of concrete query
// variants, validated at parse time, as spec.md §9 recommends ("model as a
// sum type of concrete query variants validated at parse type") rather than
// as an untyped dynamic object.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/bayardsearch/bayard/internal/apierr"
)

// Kind is the tagged union discriminant of spec.md §4.5.
type Kind string

const (
	KindAll        Kind = "ALL"
	KindBoolean    Kind = "BOOLEAN"
	KindBoost      Kind = "BOOST"
	KindFuzzyTerm  Kind = "FUZZY_TERM"
	KindPhrase     Kind = "PHRASE"
	KindQueryStr   Kind = "QUERY_STRING"
	KindRange      Kind = "RANGE"
	KindRegex      Kind = "REGEX"
	KindTerm       Kind = "TERM"
)

// Envelope is the wire shape: a kind plus a kind-specific options blob.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Options json.RawMessage `json:"options"`
}

// Query is the parsed sum type. Exactly one of the typed fields is set,
// matching Kind.
type Query struct {
	Kind       Kind
	All        *AllQuery
	Boolean    *BooleanQuery
	Boost      *BoostQuery
	FuzzyTerm  *FuzzyTermQuery
	Phrase     *PhraseQuery
	QueryStr   *QueryStringQuery
	Range      *RangeQuery
	Regex      *RegexQuery
	Term       *TermQuery
}

type AllQuery struct{}

type Occur string

const (
	OccurMust    Occur = "must"
	OccurShould  Occur = "should"
	OccurMustNot Occur = "must_not"
)

type BooleanClause struct {
	Occur Occur    `json:"occur"`
	Query Envelope `json:"query"`
}

type BooleanQuery struct {
	Clauses []BooleanClause `json:"clauses"`
}

type BoostQuery struct {
	Query Envelope `json:"query"`
	Boost float64  `json:"boost"`
}

type FuzzyTermQuery struct {
	Field      string `json:"field"`
	Term       string `json:"term"`
	Distance   int    `json:"distance"`
	Prefix     int    `json:"prefix_length"`
}

type PhraseQuery struct {
	Field string   `json:"field"`
	Terms []string `json:"terms"`
	Slop  int      `json:"slop"`
}

type QueryStringQuery struct {
	Query           string   `json:"query"`
	DefaultFields   []string `json:"default_fields,omitempty"`
}

type RangeQuery struct {
	Field        string `json:"field"`
	Lower        any    `json:"lower,omitempty"`
	Upper        any    `json:"upper,omitempty"`
	IncludeLower bool   `json:"include_lower"`
	IncludeUpper bool   `json:"include_upper"`
}

type RegexQuery struct {
	Field string `json:"field"`
	Regex string `json:"regex"`
}

type TermQuery struct {
	Field string `json:"field"`
	Term  string `json:"term"`
}

// Parse validates the tagged union and materializes the concrete variant.
// Malformed JSON or an unknown kind fails with InvalidArgument.
func Parse(env Envelope) (Query, error) {
	q := Query{Kind: env.Kind}
	var err error
	switch env.Kind {
	case KindAll:
		q.All = &AllQuery{}
	case KindBoolean:
		q.Boolean = new(BooleanQuery)
		err = json.Unmarshal(env.Options, q.Boolean)
		if err == nil {
			for _, c := range q.Boolean.Clauses {
				if _, e := Parse(c.Query); e != nil {
					err = e
					break
				}
			}
		}
	case KindBoost:
		q.Boost = new(BoostQuery)
		err = json.Unmarshal(env.Options, q.Boost)
		if err == nil {
			_, err = Parse(q.Boost.Query)
		}
	case KindFuzzyTerm:
		q.FuzzyTerm = new(FuzzyTermQuery)
		err = json.Unmarshal(env.Options, q.FuzzyTerm)
	case KindPhrase:
		q.Phrase = new(PhraseQuery)
		err = json.Unmarshal(env.Options, q.Phrase)
	case KindQueryStr:
		q.QueryStr = new(QueryStringQuery)
		err = json.Unmarshal(env.Options, q.QueryStr)
	case KindRange:
		q.Range = new(RangeQuery)
		err = json.Unmarshal(env.Options, q.Range)
	case KindRegex:
		q.Regex = new(RegexQuery)
		err = json.Unmarshal(env.Options, q.Regex)
	case KindTerm:
		q.Term = new(TermQuery)
		err = json.Unmarshal(env.Options, q.Term)
	default:
		return Query{}, apierr.New(apierr.InvalidArgument, "unknown query kind %q", env.Kind)
	}
	if err != nil {
		return Query{}, apierr.Wrap(apierr.InvalidArgument, err, "malformed options for query kind %q", env.Kind)
	}
	return q, nil
}

// CollectionKind selects what Search materializes, per spec.md §4.3.
type CollectionKind string

const (
	CollectCount         CollectionKind = "count"
	CollectTopDocs       CollectionKind = "top_docs"
	CollectCountAndTop   CollectionKind = "count_and_top_docs"
)

// SortOrder is ascending or descending, applied to score or a fast field.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Sort names the field to sort by (empty means "score") and the direction.
type Sort struct {
	Field string    `json:"field,omitempty"`
	Order SortOrder `json:"order"`
}

func (s Sort) String() string {
	if s.Field == "" {
		return fmt.Sprintf("score %s", s.Order)
	}
	return fmt.Sprintf("%s %s", s.Field, s.Order)
}
