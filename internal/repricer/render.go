package repricer

import (
	"strconv"

	"github.com/sedori-tools/repricer/internal/codec"
)

// ReportHeader is the column layout of the change report.
var ReportHeader = []string{
	"SKU",
	"days_since_listed",
	"current_price",
	"new_price",
	"current_price_trace",
	"new_price_trace",
	"price_trace_change",
	"action",
	"reason",
}

const unchangedPlaceholder = "-"

func (e *Engine) render(res *Result, src *codec.Table) error {
	updated, err := e.codec.Encode(UpdatedTable(res, src, e.schema))
	if err != nil {
		return err
	}
	report, err := e.codec.EncodeReport(ReportTable(res))
	if err != nil {
		return err
	}
	res.Updated, res.Report = updated, report
	return nil
}

// UpdatedTable keeps the input header and only the rows that changed, with
// the price and auto-track cells rewritten. If the input has no auto-track
// column and a mode changed, the column is appended.
func UpdatedTable(res *Result, src *codec.Table, schema Schema) *codec.Table {
	bound, err := schema.bind(src.Header)
	if err != nil {
		return &codec.Table{Header: src.Header}
	}

	header := append([]string(nil), src.Header...)
	trackCol := bound.autoTrack
	if trackCol < 0 {
		for _, item := range res.Items {
			if item.Changed && item.NewAutoTrackMode != nil {
				header = append(header, schema.AutoTrack)
				trackCol = len(header) - 1
				break
			}
		}
	}

	out := &codec.Table{Header: header}
	for _, item := range res.Items {
		if !item.Changed {
			continue
		}
		row := make([]string, len(header))
		for i := range row {
			if i < len(item.source) {
				row[i] = CleanCell(item.source[i])
			}
		}
		row[bound.price] = item.NewPrice.String()
		if trackCol >= 0 {
			mode := item.CurrentAutoTrackMode
			if item.NewAutoTrackMode != nil {
				mode = *item.NewAutoTrackMode
			}
			row[trackCol] = strconv.Itoa(mode)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// ReportTable lists every processed listing, changed or not.
func ReportTable(res *Result) *codec.Table {
	out := &codec.Table{Header: ReportHeader}
	for _, item := range res.Items {
		newTrack, change := unchangedPlaceholder, unchangedPlaceholder
		if item.NewAutoTrackMode != nil {
			newTrack = strconv.Itoa(*item.NewAutoTrackMode)
			change = strconv.Itoa(item.CurrentAutoTrackMode) + "→" + newTrack
		}
		out.Rows = append(out.Rows, []string{
			item.SKU,
			item.DaysSinceListed.String(),
			item.CurrentPrice.String(),
			item.NewPrice.String(),
			strconv.Itoa(item.CurrentAutoTrackMode),
			newTrack,
			change,
			string(item.Action),
			item.Reason,
		})
	}
	return out
}
