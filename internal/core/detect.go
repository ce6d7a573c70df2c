package core

// detect.go sniffs the shape of an uploaded statement before parsing:
//
//  1. The file extension selects delimited text or a spreadsheet format.
//  2. For text, the first 4KB decide the encoding (BOM, then strict UTF-8,
//     then ISO-8859-1).
//  3. The decoded first line decides the field delimiter.
//
// Detection only reads; the stream is rewound before returning.

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// SniffSize is how many leading bytes are inspected.
const SniffSize = 4096

// FormatKind is the container format of a statement file.
type FormatKind string

const (
	KindDelimited FormatKind = "delimited"
	KindXLSX      FormatKind = "xlsx"
	KindXLS       FormatKind = "xls"
)

// TextEncoding is the character encoding of delimited text.
type TextEncoding string

const (
	EncodingUTF8    TextEncoding = "utf-8"
	EncodingUTF16LE TextEncoding = "utf-16le"
	EncodingUTF16BE TextEncoding = "utf-16be"
	EncodingLatin1  TextEncoding = "iso-8859-1"
)

// Format is the result of DetectFormat.
type Format struct {
	Kind      FormatKind
	Encoding  TextEncoding // delimited only
	Delimiter rune         // delimited only
}

// delimiterCandidates is ordered; earlier entries win ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

var extensionKinds = map[string]FormatKind{
	".csv":  KindDelimited,
	".txt":  KindDelimited,
	".tsv":  KindDelimited,
	".xlsx": KindXLSX,
	".xls":  KindXLS,
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// KindForFile maps a file name to its format kind by extension.
func KindForFile(fileName string) (FormatKind, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	kind, ok := extensionKinds[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return kind, nil
}

// DetectFormat inspects r and returns its format. r is rewound to the start
// before returning, including on error.
func DetectFormat(r io.ReadSeeker, fileName string) (Format, error) {
	kind, err := KindForFile(fileName)
	if err != nil {
		return Format{}, err
	}
	if kind != KindDelimited {
		return Format{Kind: kind}, nil
	}

	sample := make([]byte, SniffSize)
	n, err := io.ReadFull(r, sample)
	if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
		return Format{}, fmt.Errorf("rewind after sniff: %w", seekErr)
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Format{}, fmt.Errorf("read sample: %w", err)
	}
	sample = sample[:n]

	enc := DetectEncoding(sample)
	decoded, err := decodeSample(sample, enc)
	if err != nil {
		return Format{}, fmt.Errorf("decode sample: %w", err)
	}

	return Format{
		Kind:      KindDelimited,
		Encoding:  enc,
		Delimiter: DetectDelimiter(firstLine(decoded)),
	}, nil
}

// DetectEncoding picks an encoding for sample: a byte-order mark wins,
// otherwise strict UTF-8 if the sample decodes, otherwise ISO-8859-1.
func DetectEncoding(sample []byte) TextEncoding {
	switch {
	case bytes.HasPrefix(sample, bomUTF8):
		return EncodingUTF8
	case bytes.HasPrefix(sample, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(sample, bomUTF16BE):
		return EncodingUTF16BE
	}
	if validUTF8Prefix(sample) {
		return EncodingUTF8
	}
	return EncodingLatin1
}

// validUTF8Prefix is utf8.Valid that tolerates a multi-byte sequence cut
// off by the sample boundary.
func validUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut <= len(b); cut++ {
		tail := b[len(b)-cut:]
		if utf8.RuneStart(tail[0]) && !utf8.FullRune(tail) {
			return utf8.Valid(b[:len(b)-cut])
		}
	}
	return false
}

// DetectDelimiter returns the candidate producing the most fields on line.
// Ties, including a line with no candidate at all, resolve to the earliest
// candidate (comma).
func DetectDelimiter(line string) rune {
	best := delimiterCandidates[0]
	bestCount := -1
	for _, d := range delimiterCandidates {
		count := strings.Count(line, string(d)) + 1
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

// firstLine returns text up to the first line break, BOM removed.
func firstLine(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
