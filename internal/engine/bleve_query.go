package engine

import (
	bleveq "github.com/blevesearch/bleve/v2/search/query"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/query"
)

// toBleveQuery translates the parsed sum-type query into the concrete
// bleve query implementation it corresponds to.
func toBleveQuery(q query.Query) (bleveq.Query, error) {
	switch q.Kind {
	case query.KindAll:
		return bleveq.NewMatchAllQuery(), nil

	case query.KindTerm:
		tq := bleveq.NewTermQuery(q.Term.Term)
		tq.SetField(q.Term.Field)
		return tq, nil

	case query.KindFuzzyTerm:
		fq := bleveq.NewFuzzyQuery(q.FuzzyTerm.Term)
		fq.SetField(q.FuzzyTerm.Field)
		fq.Fuzziness = q.FuzzyTerm.Distance
		fq.Prefix = q.FuzzyTerm.Prefix
		return fq, nil

	case query.KindPhrase:
		pq := bleveq.NewPhraseQuery(q.Phrase.Terms, q.Phrase.Field)
		return pq, nil

	case query.KindQueryStr:
		return bleveq.NewQueryStringQuery(q.QueryStr.Query), nil

	case query.KindRegex:
		rq := bleveq.NewRegexpQuery(q.Regex.Regex)
		rq.SetField(q.Regex.Field)
		return rq, nil

	case query.KindRange:
		return toBleveRange(q.Range)

	case query.KindBoost:
		inner, err := toBleveQuery(mustParse(q.Boost.Query))
		if err != nil {
			return nil, err
		}
		boosted := bleveq.NewBoostQuery(inner)
		boosted.SetBoost(q.Boost.Boost)
		return boosted, nil

	case query.KindBoolean:
		bq := bleveq.NewBooleanQuery()
		for _, clause := range q.Boolean.Clauses {
			parsed, err := query.Parse(clause.Query)
			if err != nil {
				return nil, err
			}
			sub, err := toBleveQuery(parsed)
			if err != nil {
				return nil, err
			}
			switch clause.Occur {
			case query.OccurMust:
				bq.AddMust(sub)
			case query.OccurShould:
				bq.AddShould(sub)
			case query.OccurMustNot:
				bq.AddMustNot(sub)
			default:
				return nil, apierr.New(apierr.InvalidArgument, "unknown boolean occur %q", clause.Occur)
			}
		}
		return bq, nil

	default:
		return nil, apierr.New(apierr.InvalidArgument, "unsupported query kind %q", q.Kind)
	}
}

func toBleveRange(r *query.RangeQuery) (bleveq.Query, error) {
	lo, loOK := asFloat(r.Lower)
	hi, hiOK := asFloat(r.Upper)
	if loOK || hiOK {
		nq := bleveq.NewNumericRangeInclusiveQuery(ptrOrNil(lo, loOK), ptrOrNil(hi, hiOK), &r.IncludeLower, &r.IncludeUpper)
		nq.SetField(r.Field)
		return nq, nil
	}
	loS, _ := r.Lower.(string)
	hiS, _ := r.Upper.(string)
	tq := bleveq.NewTermRangeQuery(loS, hiS)
	tq.SetField(r.Field)
	return tq, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func ptrOrNil(f float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &f
}

// mustParse re-parses an already-validated envelope; Boost/Boolean nesting
// is validated up-front by query.Parse, so this never fails in practice.
func mustParse(env query.Envelope) query.Query {
	q, err := query.Parse(env)
	if err != nil {
		return query.Query{Kind: query.KindAll, All: &query.AllQuery{}}
	}
	return q
}
