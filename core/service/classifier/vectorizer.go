package classifier

import (
	"math"
	"sort"
	"strings"
)

// englishStopwords is the fixed stopword list used to strip low-signal
// tokens before n-gram extraction (§4.G "English stopwords").
var englishStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "by": true, "from": true, "this": true, "that": true,
	"it": true, "as": true, "if": true, "then": true, "than": true,
	"so": true, "no": true, "not": true, "you": true, "your": true, "i": true,
}

const maxVocabularySize = 4000

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if !englishStopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// ngrams builds unigrams and bigrams from a token stream (§4.G "1-2 grams").
func ngrams(tokens []string) []string {
	grams := make([]string, 0, len(tokens)*2)
	grams = append(grams, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		grams = append(grams, tokens[i]+"_"+tokens[i+1])
	}
	return grams
}

// Vocabulary maps an n-gram to its column index and IDF weight.
type Vocabulary struct {
	Index map[string]int
	IDF   []float64
}

// BuildVocabulary fits a capped TF-IDF vocabulary over a corpus of raw text
// fields, matching §4.G's "capped vocabulary". Vocabulary capping keeps the
// maxVocabularySize highest document-frequency terms, a simple and
// deterministic substitute for the teacher's (absent) feature-selection
// library.
func BuildVocabulary(corpus []string) *Vocabulary {
	docFreq := map[string]int{}
	for _, doc := range corpus {
		seen := map[string]bool{}
		for _, g := range ngrams(tokenize(doc)) {
			if !seen[g] {
				docFreq[g]++
				seen[g] = true
			}
		}
	}

	type termCount struct {
		term  string
		count int
	}
	terms := make([]termCount, 0, len(docFreq))
	for t, c := range docFreq {
		terms = append(terms, termCount{t, c})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].count != terms[j].count {
			return terms[i].count > terms[j].count
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > maxVocabularySize {
		terms = terms[:maxVocabularySize]
	}

	n := float64(len(corpus))
	vocab := &Vocabulary{Index: make(map[string]int, len(terms)), IDF: make([]float64, len(terms))}
	for i, t := range terms {
		vocab.Index[t.term] = i
		vocab.IDF[i] = math.Log((n+1)/(float64(t.count)+1)) + 1
	}
	return vocab
}

// Vectorize produces a dense TF-IDF vector over vocab for a single document.
func (v *Vocabulary) Vectorize(doc string) []float64 {
	vec := make([]float64, len(v.Index))
	grams := ngrams(tokenize(doc))
	if len(grams) == 0 {
		return vec
	}

	tf := map[int]int{}
	for _, g := range grams {
		if idx, ok := v.Index[g]; ok {
			tf[idx]++
		}
	}
	total := float64(len(grams))
	for idx, count := range tf {
		vec[idx] = (float64(count) / total) * v.IDF[idx]
	}
	return vec
}

// CategoryMap is a one-hot encoder with rare-category folding into
// "__other__" (§4.G).
type CategoryMap struct {
	Index map[string]int
	Size  int
}

const rareCategoryMinCount = 2

// BuildCategoryMap fits a one-hot map over a corpus of category values,
// folding any value seen fewer than rareCategoryMinCount times into
// "__other__".
func BuildCategoryMap(values []string) *CategoryMap {
	counts := map[string]int{}
	for _, v := range values {
		counts[v]++
	}

	kept := make([]string, 0, len(counts))
	for v, c := range counts {
		if c >= rareCategoryMinCount {
			kept = append(kept, v)
		}
	}
	sort.Strings(kept)

	idx := make(map[string]int, len(kept)+1)
	for i, v := range kept {
		idx[v] = i
	}
	idx["__other__"] = len(kept)

	return &CategoryMap{Index: idx, Size: len(kept) + 1}
}

// OneHot encodes a single value, folding unseen/rare values to "__other__".
func (m *CategoryMap) OneHot(value string) []float64 {
	vec := make([]float64, m.Size)
	idx, ok := m.Index[value]
	if !ok {
		idx = m.Index["__other__"]
	}
	vec[idx] = 1
	return vec
}
