package core

// columns.go suggests a canonical field for each statement header.
//
// Headers are lower-cased and trimmed, then matched against headerDictionary:
//
//  1. An exact dictionary hit scores 100.
//  2. Otherwise every entry is scored by the first strategy in
//     scoreStrategies that applies (pattern inside header, header inside
//     pattern, edit-distance similarity) and the best entry wins.
//  3. A best score under MinSuggestionConfidence reports Unknown.
//
// Equal scores resolve to the entry declared first.

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// MinSuggestionConfidence is the lowest score reported as a suggestion.
	MinSuggestionConfidence = 50
	// MinSimilarity is the lowest edit-distance score that counts at all.
	MinSimilarity = 60
)

type headerPattern struct {
	pattern string
	field   CanonicalField
}

// headerDictionary holds known header spellings across the languages banks
// commonly export in. Order matters for ties.
var headerDictionary = []headerPattern{
	// Date
	{"date", FieldDate},
	{"data", FieldDate},
	{"fecha", FieldDate},
	{"datum", FieldDate},
	{"transaction date", FieldDate},
	{"booking date", FieldDate},
	{"posting date", FieldDate},
	{"value date", FieldDate},
	{"data operazione", FieldDate},
	{"data contabile", FieldDate},
	{"data valuta", FieldDate},
	{"fecha operación", FieldDate},
	{"fecha valor", FieldDate},
	{"buchungstag", FieldDate},
	{"buchungsdatum", FieldDate},
	{"valutadatum", FieldDate},
	{"date opération", FieldDate},
	{"date valeur", FieldDate},
	{"data movimento", FieldDate},

	// Amount
	{"amount", FieldAmount},
	{"importo", FieldAmount},
	{"importe", FieldAmount},
	{"betrag", FieldAmount},
	{"montant", FieldAmount},
	{"valor", FieldAmount},
	{"bedrag", FieldAmount},
	{"transaction amount", FieldAmount},
	{"umsatz", FieldAmount},
	{"kwota", FieldAmount},

	// Description
	{"description", FieldDescription},
	{"descrizione", FieldDescription},
	{"descripción", FieldDescription},
	{"descripcion", FieldDescription},
	{"beschreibung", FieldDescription},
	{"libellé", FieldDescription},
	{"libelle", FieldDescription},
	{"descrição", FieldDescription},
	{"omschrijving", FieldDescription},
	{"details", FieldDescription},
	{"memo", FieldDescription},
	{"narrative", FieldDescription},
	{"causale", FieldDescription},
	{"concepto", FieldDescription},
	{"verwendungszweck", FieldDescription},
	{"reference", FieldDescription},

	// Name
	{"name", FieldName},
	{"nome", FieldName},
	{"nombre", FieldName},
	{"nom", FieldName},
	{"payee", FieldName},
	{"beneficiario", FieldName},
	{"beneficiary", FieldName},
	{"empfänger", FieldName},
	{"bénéficiaire", FieldName},
	{"counterparty", FieldName},
	{"merchant", FieldName},
	{"controparte", FieldName},
	{"auftraggeber", FieldName},

	// Balance
	{"balance", FieldBalance},
	{"saldo", FieldBalance},
	{"solde", FieldBalance},
	{"kontostand", FieldBalance},
	{"running balance", FieldBalance},

	// Currency
	{"currency", FieldCurrency},
	{"valuta", FieldCurrency},
	{"moneda", FieldCurrency},
	{"währung", FieldCurrency},
	{"devise", FieldCurrency},
	{"moeda", FieldCurrency},
	{"ccy", FieldCurrency},
}

// exactHeaders indexes headerDictionary; the first spelling wins.
var exactHeaders = func() map[string]CanonicalField {
	m := make(map[string]CanonicalField, len(headerDictionary))
	for _, e := range headerDictionary {
		if _, ok := m[e.pattern]; !ok {
			m[e.pattern] = e.field
		}
	}
	return m
}()

// matchStrategy scores a normalized header against one pattern. ok is false
// when the strategy does not apply.
type matchStrategy func(header, pattern string) (score float64, ok bool)

var scoreStrategies = []matchStrategy{
	containsPattern,
	containedInPattern,
	editSimilarity,
}

// DetectColumns suggests a field for every non-blank header. The result is
// keyed by the header exactly as given.
func DetectColumns(headers []string) HeaderMapping {
	out := make(HeaderMapping, len(headers))
	for _, h := range headers {
		norm := normalizeHeader(h)
		if norm == "" {
			continue
		}
		out[h] = SuggestField(norm)
	}
	return out
}

// SuggestField scores a single header.
func SuggestField(header string) ColumnSuggestion {
	h := normalizeHeader(header)
	if h == "" {
		return ColumnSuggestion{SuggestedField: FieldUnknown}
	}
	if f, ok := exactHeaders[h]; ok {
		return ColumnSuggestion{SuggestedField: f, Confidence: 100}
	}

	best := FieldUnknown
	bestScore := 0.0
	for _, e := range headerDictionary {
		score, ok := scoreEntry(h, e.pattern)
		if ok && score > bestScore {
			best, bestScore = e.field, score
		}
	}

	if bestScore < MinSuggestionConfidence {
		return ColumnSuggestion{SuggestedField: FieldUnknown}
	}
	return ColumnSuggestion{SuggestedField: best, Confidence: int(math.Round(bestScore))}
}

// scoreEntry applies the first strategy that accepts the pair.
func scoreEntry(header, pattern string) (float64, bool) {
	for _, s := range scoreStrategies {
		if score, ok := s(header, pattern); ok {
			return score, true
		}
	}
	return 0, false
}

// containsPattern: the header includes the whole pattern.
func containsPattern(header, pattern string) (float64, bool) {
	if !strings.Contains(header, pattern) {
		return 0, false
	}
	return 85 + 15*ratio(pattern, header), true
}

// containedInPattern: the header is a fragment of the pattern.
func containedInPattern(header, pattern string) (float64, bool) {
	if !strings.Contains(pattern, header) {
		return 0, false
	}
	return 75 + 10*ratio(header, pattern), true
}

// editSimilarity is normalized Levenshtein similarity, kept from
// MinSimilarity upwards.
func editSimilarity(header, pattern string) (float64, bool) {
	lh, lp := utf8.RuneCountInString(header), utf8.RuneCountInString(pattern)
	longest := max(lh, lp)
	if longest == 0 {
		return 0, false
	}
	sim := (1 - float64(levenshtein(header, pattern))/float64(longest)) * 100
	if sim < MinSimilarity {
		return 0, false
	}
	return sim, true
}

// ratio is the rune length of a over the rune length of b.
func ratio(a, b string) float64 {
	return float64(utf8.RuneCountInString(a)) / float64(utf8.RuneCountInString(b))
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// levenshtein counts single-rune insertions, deletions and substitutions.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
