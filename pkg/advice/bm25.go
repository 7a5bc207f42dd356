// Package advice holds the retrieval and ranking side of the engine: the
// BM25 index over the therapy corpus, the dense vector cache, the NLI fit
// gate, and the feature-weighted ranker.
package advice

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// BM25 defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75

	prefixExpansionCap = 50
)

// bm25Stopwords is the shared stop set for the retrieval tokenizer.
var bm25Stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "to": true, "of": true, "in": true,
	"on": true, "it": true, "that": true, "this": true, "with": true,
	"for": true, "at": true, "be": true, "as": true,
}

// TokenizeQuery NFKC-normalizes, lowercases, keeps letters and numbers of
// any script (collapsing the rest to spaces), and drops stop words.
func TokenizeQuery(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, f := range fields {
		if !bm25Stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// SearchOptions selects query expansion strategies.
type SearchOptions struct {
	Prefix bool
	Fuzzy  bool
	Limit  int
}

// SearchResult is one scored document.
type SearchResult struct {
	ID           string   `json:"id"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matchedTerms"`
}

type bm25Doc struct {
	id     string
	length int
	tf     map[string]int
}

// BM25Index is a classical BM25 index with deterministic expansion.
type BM25Index struct {
	docs      []bm25Doc
	docIdx    map[string]int
	df        map[string]int
	idf       map[string]float64
	avgLen    float64
	terms     []string // sorted vocabulary for prefix scans
}

// NewBM25Index returns an empty index; Add documents, then call Finish.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		docIdx: make(map[string]int),
		df:     make(map[string]int),
		idf:    make(map[string]float64),
	}
}

// Add indexes one document. Call Finish after the last Add.
func (ix *BM25Index) Add(id, text string) {
	tokens := TokenizeQuery(text)
	doc := bm25Doc{id: id, length: len(tokens), tf: make(map[string]int, len(tokens))}
	for _, t := range tokens {
		doc.tf[t]++
	}
	for t := range doc.tf {
		ix.df[t]++
	}
	ix.docIdx[id] = len(ix.docs)
	ix.docs = append(ix.docs, doc)
}

// Finish precomputes idf(t) = ln(1 + (N−df+0.5)/(df+0.5)) and the vocabulary.
func (ix *BM25Index) Finish() {
	n := float64(len(ix.docs))
	var totalLen int
	for _, d := range ix.docs {
		totalLen += d.length
	}
	if len(ix.docs) > 0 {
		ix.avgLen = float64(totalLen) / n
	}
	ix.terms = ix.terms[:0]
	for t, df := range ix.df {
		ix.idf[t] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		ix.terms = append(ix.terms, t)
	}
	sort.Strings(ix.terms)
}

// Len returns the document count.
func (ix *BM25Index) Len() int { return len(ix.docs) }

// Search scores the query with per-query-term best-expansion-per-doc so an
// expanded term never double-counts. Results order: score desc, then doc id
// asc; matched terms are sorted for determinism.
func (ix *BM25Index) Search(query string, opts SearchOptions) []SearchResult {
	qTerms := TokenizeQuery(query)
	if len(qTerms) == 0 || len(ix.docs) == 0 {
		return nil
	}

	type docAcc struct {
		score   float64
		matched map[string]bool
	}
	acc := make(map[int]*docAcc)

	for _, q := range qTerms {
		expansions := ix.expand(q, opts)
		// Best expansion per doc: take the max single-expansion score.
		best := make(map[int]float64)
		bestTerm := make(map[int]string)
		for _, term := range expansions {
			idf, ok := ix.idf[term]
			if !ok {
				continue
			}
			for di, doc := range ix.docs {
				tf, ok := doc.tf[term]
				if !ok {
					continue
				}
				num := float64(tf) * (bm25K1 + 1)
				den := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/ix.avgLen)
				s := idf * num / den
				if s > best[di] {
					best[di] = s
					bestTerm[di] = term
				}
			}
		}
		for di, s := range best {
			a, ok := acc[di]
			if !ok {
				a = &docAcc{matched: make(map[string]bool)}
				acc[di] = a
			}
			a.score += s
			a.matched[bestTerm[di]] = true
		}
	}

	results := make([]SearchResult, 0, len(acc))
	for di, a := range acc {
		terms := make([]string, 0, len(a.matched))
		for t := range a.matched {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		results = append(results, SearchResult{
			ID: ix.docs[di].id, Score: a.score, MatchedTerms: terms,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

// expand returns the deterministic expansion set for one query term:
// the term itself, prefix completions (capped, df desc then alpha), and
// distance-1 fuzzy matches (alphabetized).
func (ix *BM25Index) expand(q string, opts SearchOptions) []string {
	seen := map[string]bool{q: true}
	out := []string{q}

	if opts.Prefix && len(q) >= 2 {
		var candidates []string
		lo := sort.SearchStrings(ix.terms, q)
		for i := lo; i < len(ix.terms) && strings.HasPrefix(ix.terms[i], q); i++ {
			if !seen[ix.terms[i]] {
				candidates = append(candidates, ix.terms[i])
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if ix.df[candidates[i]] != ix.df[candidates[j]] {
				return ix.df[candidates[i]] > ix.df[candidates[j]]
			}
			return candidates[i] < candidates[j]
		})
		if len(candidates) > prefixExpansionCap {
			candidates = candidates[:prefixExpansionCap]
		}
		for _, c := range candidates {
			seen[c] = true
			out = append(out, c)
		}
	}

	if opts.Fuzzy && len(q) >= 3 {
		var fuzzy []string
		for _, term := range ix.terms {
			if seen[term] {
				continue
			}
			if withinDistanceOne(q, term) {
				fuzzy = append(fuzzy, term)
			}
		}
		sort.Strings(fuzzy)
		for _, c := range fuzzy {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// withinDistanceOne is a Damerau–Levenshtein check specialized for distance
// exactly ≤1: substitution, adjacent transposition, single insert or delete.
func withinDistanceOne(a, b string) bool {
	la, lb := len(a), len(b)
	switch {
	case la == lb:
		// Substitution or adjacent transposition.
		diff := -1
		for i := 0; i < la; i++ {
			if a[i] != b[i] {
				if diff >= 0 {
					// Second mismatch: only a transposition of the first pair survives.
					if diff == i-1 && a[diff] == b[i] && a[i] == b[diff] {
						return a[i+1:] == b[i+1:]
					}
					return false
				}
				diff = i
			}
		}
		return true
	case la == lb+1:
		return oneDeletion(a, b)
	case lb == la+1:
		return oneDeletion(b, a)
	default:
		return false
	}
}

// oneDeletion reports whether deleting one char from longer yields shorter.
func oneDeletion(longer, shorter string) bool {
	for i := 0; i < len(longer); i++ {
		if longer[:i]+longer[i+1:] == shorter {
			return true
		}
	}
	return false
}
