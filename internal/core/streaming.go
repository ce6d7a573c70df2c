package core

// streaming.go provides decoding readers that turn statement bytes of any
// supported encoding into UTF-8 text without loading the whole file.
//
//   - UTF-8: a leading BOM is stripped and invalid sequences become U+FFFD
//   - UTF-16LE/BE: the BOM selects byte order and is stripped
//   - ISO-8859-1: every byte maps to one rune
//
// Use NewDecodingReader with the encoding returned by DetectFormat.

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decoderFor returns the x/text encoding that reads enc.
func decoderFor(enc TextEncoding) (encoding.Encoding, error) {
	switch enc {
	case EncodingUTF8, "":
		return unicode.UTF8BOM, nil
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	case EncodingLatin1:
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unknown text encoding %q", enc)
	}
}

// NewDecodingReader wraps r so that reads yield UTF-8 text decoded from enc.
func NewDecodingReader(r io.Reader, enc TextEncoding) (io.Reader, error) {
	e, err := decoderFor(enc)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, e.NewDecoder()), nil
}

// decodeSample decodes an in-memory sample. A sample cut mid-character
// decodes the cut character as U+FFFD rather than failing.
func decodeSample(sample []byte, enc TextEncoding) (string, error) {
	e, err := decoderFor(enc)
	if err != nil {
		return "", err
	}
	out, _, err := transform.Bytes(e.NewDecoder(), sample)
	if err != nil {
		return "", fmt.Errorf("%s encoding error: %w", enc, err)
	}
	return string(out), nil
}
