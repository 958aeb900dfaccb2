package codec

import (
	"bytes"
	"strings"
)

// quoteAllWriter emits RFC 4180 records with every field quoted and CRLF
// terminators. encoding/csv only quotes when it must, and the marketplace
// upload rejects unquoted fields.
type quoteAllWriter struct {
	buf *bytes.Buffer
}

func newQuoteAllWriter(buf *bytes.Buffer) *quoteAllWriter {
	return &quoteAllWriter{buf: buf}
}

func (w *quoteAllWriter) Write(record []string) {
	for i, field := range record {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.buf.WriteByte('"')
		w.buf.WriteString(strings.ReplaceAll(sanitizeField.Replace(field), `"`, `""`))
		w.buf.WriteByte('"')
	}
	w.buf.WriteString("\r\n")
}
