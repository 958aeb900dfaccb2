package repricer

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Age is the number of days since a listing went live, or unknown when the
// listing date could not be determined.
type Age struct {
	days  int
	known bool
}

// UnknownAge is the sentinel for listings whose date could not be parsed.
var UnknownAge = Age{}

func KnownAge(days int) Age { return Age{days: days, known: true} }

func (a Age) Days() (int, bool) { return a.days, a.known }

func (a Age) Known() bool { return a.known }

func (a Age) String() string {
	if !a.known {
		return "unknown"
	}
	return strconv.Itoa(a.days)
}

func (a Age) MarshalJSON() ([]byte, error) {
	if !a.known {
		return []byte("null"), nil
	}
	return json.Marshal(a.days)
}

func (a *Age) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = UnknownAge
		return nil
	}
	var d int
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	*a = KnownAge(d)
	return nil
}

// ListingRecord is one validated input row.
type ListingRecord struct {
	Row                  int
	SKU                  string
	CurrentPrice         decimal.Decimal
	FloorPrice           decimal.Decimal
	CurrentAutoTrackMode int
	DaysSinceListed      Age
}
