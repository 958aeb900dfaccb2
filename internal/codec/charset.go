package codec

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errInvalidText = errors.New("input contains bytes that are not valid in the selected encoding")

// decodeText converts raw bytes to a UTF-8 string. In auto mode, valid
// UTF-8 (with or without BOM) is taken as is and anything else is read as
// CP932.
func decodeText(data []byte, enc string) (string, string, error) {
	switch enc {
	case EncodingUTF8, EncodingUTF8BOM:
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", enc, &CodecError{Op: "decode", Encoding: enc, Err: errInvalidText}
		}
		return string(data), enc, nil
	case EncodingCP932:
		return decodeCP932(data)
	}

	if bytes.HasPrefix(data, utf8BOM) {
		trimmed := data[len(utf8BOM):]
		if !utf8.Valid(trimmed) {
			return "", EncodingUTF8BOM, &CodecError{Op: "decode", Encoding: EncodingUTF8BOM, Err: errInvalidText}
		}
		return string(trimmed), EncodingUTF8BOM, nil
	}
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}
	return decodeCP932(data)
}

func decodeCP932(data []byte) (string, string, error) {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	if err != nil {
		return "", EncodingCP932, &CodecError{Op: "decode", Encoding: EncodingCP932, Err: err}
	}
	// The decoder substitutes U+FFFD for undecodable sequences.
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", EncodingCP932, &CodecError{Op: "decode", Encoding: EncodingCP932, Err: errInvalidText}
	}
	return string(out), EncodingCP932, nil
}

// encodeText converts UTF-8 text to the output encoding. Runes CP932 cannot
// represent are replaced rather than failing the whole file.
func encodeText(s string, enc string) ([]byte, error) {
	switch enc {
	case EncodingUTF8:
		return []byte(s), nil
	case EncodingUTF8BOM:
		return append(append([]byte{}, utf8BOM...), s...), nil
	}
	out, _, err := transform.String(encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()), s)
	if err != nil {
		return nil, &CodecError{Op: "encode", Encoding: enc, Err: err}
	}
	return []byte(out), nil
}

// sanitizeField flattens control characters that break single-line cells.
var sanitizeField = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
