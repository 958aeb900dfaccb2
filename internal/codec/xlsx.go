package codec

import (
	"bytes"
	"errors"

	"github.com/xuri/excelize/v2"
)

var errNoSheets = errors.New("workbook has no sheets")

// decodeXLSX reads the first worksheet of a workbook.
func decodeXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CodecError{Op: "decode", Encoding: EncodingXLSX, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &CodecError{Op: "decode", Encoding: EncodingXLSX, Err: errNoSheets}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &CodecError{Op: "decode", Encoding: EncodingXLSX, Err: err}
	}

	table := &Table{Encoding: EncodingXLSX}
	for _, row := range rows {
		if blank(row) {
			continue
		}
		if table.Header == nil {
			table.Header = row
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
