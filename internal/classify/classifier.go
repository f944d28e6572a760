// Package classify implements the ticket classifier: a pluggable function
// assigning a category and priority label from ticket text.
//
// The concrete implementation is a small token-frequency model trained from a
// labeled CSV dataset at process start. It is immutable after construction
// and safe for concurrent use. When the dataset is missing or unreadable the
// process runs without a classifier for its whole lifetime and the lifecycle
// service falls back to the default label pair; classification is enrichment,
// never a correctness requirement.
package classify

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Classifier assigns classification labels to a ticket description.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(description string) (category, priority string)
}

// Example is one labeled training row.
type Example struct {
	Description string
	Category    string
	Priority    string
}

// Model is a per-label token-frequency scorer. For each label it stores the
// relative frequency of every token seen in that label's training examples;
// classification picks the label whose token profile best matches the input.
type Model struct {
	categories map[string]map[string]float64
	priorities map[string]map[string]float64
}

// ErrEmptyDataset is returned when the training file contains no usable rows.
var ErrEmptyDataset = errors.New("classify: dataset has no labeled rows")

// LoadCSV reads a training dataset with columns description,category,priority
// (header row optional) and trains a Model from it.
func LoadCSV(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadCSV(f)
}

func loadCSV(r io.Reader) (*Model, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var rows []Example
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(rec[0], "description") {
			continue
		}
		rows = append(rows, Example{Description: rec[0], Category: rec[1], Priority: rec[2]})
	}
	return NewModel(rows)
}

// NewModel trains a Model from labeled examples. Labels are canonicalized to
// Title case so "network" and "Network" train the same bucket.
func NewModel(rows []Example) (*Model, error) {
	caser := cases.Title(language.English)

	catCounts := map[string]map[string]int{}
	priCounts := map[string]map[string]int{}
	for _, ex := range rows {
		toks := tokens(ex.Description)
		if len(toks) == 0 {
			continue
		}
		cat := caser.String(strings.TrimSpace(ex.Category))
		pri := caser.String(strings.TrimSpace(ex.Priority))
		if cat == "" || pri == "" {
			continue
		}
		addTokens(catCounts, cat, toks)
		addTokens(priCounts, pri, toks)
	}
	if len(catCounts) == 0 || len(priCounts) == 0 {
		return nil, ErrEmptyDataset
	}
	return &Model{
		categories: normalize(catCounts),
		priorities: normalize(priCounts),
	}, nil
}

// Classify scores the description against every label profile and returns
// the best category and priority. With no token overlap at all, it falls back
// to the label with the largest training mass, so the result is always a
// trained label, never empty.
func (m *Model) Classify(description string) (string, string) {
	toks := tokens(description)
	return bestLabel(m.categories, toks), bestLabel(m.priorities, toks)
}

func addTokens(counts map[string]map[string]int, label string, toks []string) {
	bucket := counts[label]
	if bucket == nil {
		bucket = map[string]int{}
		counts[label] = bucket
	}
	for _, t := range toks {
		bucket[t]++
	}
}

// normalize converts raw token counts to relative frequencies per label.
func normalize(counts map[string]map[string]int) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(counts))
	for label, bucket := range counts {
		total := 0
		for _, n := range bucket {
			total += n
		}
		freqs := make(map[string]float64, len(bucket))
		for t, n := range bucket {
			freqs[t] = float64(n) / float64(total)
		}
		out[label] = freqs
	}
	return out
}

// bestLabel returns the label whose profile accumulates the highest score for
// the given tokens. Ties (including the all-zero case) break on total profile
// mass descending, then label name ascending, so output is deterministic.
func bestLabel(profiles map[string]map[string]float64, toks []string) string {
	labels := make([]string, 0, len(profiles))
	for l := range profiles {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	best := ""
	bestScore := -1.0
	for _, label := range labels {
		score := 0.0
		for _, t := range toks {
			score += profiles[label][t]
		}
		if score > bestScore {
			best, bestScore = label, score
		}
	}
	if bestScore == 0 {
		best = heaviestLabel(profiles, labels)
	}
	return best
}

// heaviestLabel picks the label with the most training tokens; labels slice
// must be sorted for a stable tie-break.
func heaviestLabel(profiles map[string]map[string]float64, labels []string) string {
	best := labels[0]
	bestLen := len(profiles[best])
	for _, label := range labels[1:] {
		if n := len(profiles[label]); n > bestLen {
			best, bestLen = label, n
		}
	}
	return best
}

var tokenRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// stopwords excluded from training and classification; generic ticket filler
// that carries no class signal.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"i": {}, "my": {}, "can": {}, "cannot": {}, "not": {}, "please": {}, "help": {},
}

func tokens(s string) []string {
	words := tokenRE.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		out = append(out, w)
	}
	return out
}
