package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/aaroncutress/busroutes/models"
)

// Text is a scalar field the catalog sends as a string, an integer or a float
// depending on the record. It is normalised to one canonical string: integral
// numbers lose any fractional zeros ("30.0" and 30 both become "30").
// Null, empty, boolean and composite values are invalid.
type Text struct {
	Value string
	Valid bool
}

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch {
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		t.Value, t.Valid = s, s != ""
	case isNumberStart(data[0]):
		literal := string(data)
		if isIntegerLiteral(literal) {
			t.Value, t.Valid = literal, true
			return nil
		}
		n, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil
		}
		t.Value, t.Valid = formatNumber(n), true
	}
	return nil
}

// Number is a numeric field that may arrive as a JSON number or as a numeric
// string.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	literal := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		literal = strings.TrimSpace(s)
	} else if !isNumberStart(data[0]) {
		return nil
	}

	v, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n.Value, n.Valid = v, true
	return nil
}

// Returns the value truncated to an int, or 0 when invalid
func (n Number) Int() int {
	if !n.Valid {
		return 0
	}
	return int(n.Value)
}

func isNumberStart(b byte) bool {
	return b == '-' || (b >= '0' && b <= '9')
}

func isIntegerLiteral(s string) bool {
	if s == "" || s == "-" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// itemList decodes the "item" field, which holds an array for several
// results and a bare object for exactly one.
type itemList[T any] []T

func (l *itemList[T]) UnmarshalJSON(data []byte) error {
	*l = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
	case '{':
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		*l = itemList[T]{item}
	}
	return nil
}

// itemsField decodes "items". An empty result arrives as "", null, {} or is
// missing entirely; all of them leave Item empty.
type itemsField[T any] struct {
	Item itemList[T]
}

func (f *itemsField[T]) UnmarshalJSON(data []byte) error {
	*f = itemsField[T]{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	var raw struct {
		Item itemList[T] `json:"item"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Item = raw.Item
	return nil
}

// Common response wrapper of the catalog service
type envelope[T any] struct {
	Response struct {
		Header struct {
			ResultCode Text `json:"resultCode"`
			ResultMsg  Text `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items      itemsField[T] `json:"items"`
			NumOfRows  Number        `json:"numOfRows"`
			PageNo     Number        `json:"pageNo"`
			TotalCount Number        `json:"totalCount"`
		} `json:"body"`
	} `json:"response"`
}

// Checks the header result code. A missing header is accepted.
func (e *envelope[T]) check() error {
	code := e.Response.Header.ResultCode
	if !code.Valid || code.Value == "00" || code.Value == "0" {
		return nil
	}
	return &ResultError{Code: code.Value, Message: e.Response.Header.ResultMsg.Value}
}

// Route list entry of getRouteNoList
type routeItem struct {
	RouteID Text `json:"routeid"`
	RouteNo Text `json:"routeno"`
	RouteTp Text `json:"routetp"`
}

// Normalises the item. Routes without an id or number are marked invalid.
func (r routeItem) summary() models.RouteSummary {
	return models.RouteSummary{
		ID:    models.Key(r.RouteID.Value),
		No:    r.RouteNo.Value,
		Type:  r.RouteTp.Value,
		Valid: r.RouteID.Valid && r.RouteNo.Valid,
	}
}

// Stop entry of getRouteAcctoThrghSttnList
type stopItem struct {
	NodeID  Text   `json:"nodeid"`
	NodeNm  Text   `json:"nodenm"`
	NodeNo  Text   `json:"nodeno"`
	NodeOrd Number `json:"nodeord"`
	GPSLati Number `json:"gpslati"`
	GPSLong Number `json:"gpslong"`
	UpDown  Text   `json:"updowncd"`
}

func (s stopItem) rawStop() models.RawStop {
	return models.RawStop{
		NodeID:        models.Key(s.NodeID.Value),
		Name:          s.NodeNm.Value,
		Code:          s.NodeNo.Value,
		Order:         s.NodeOrd.Int(),
		Coordinate:    models.NewCoordinate(s.GPSLati.Value, s.GPSLong.Value),
		DirectionCode: s.UpDown.Value,
	}
}
