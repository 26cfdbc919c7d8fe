package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ppiankov/scrapenet/internal/model"
)

// Parsed is one batch element after boundary decoding
type Parsed struct {
	Item   model.FetchedItem
	Faults []Fault
}

// Decoded is a whole peer response after boundary decoding
type Decoded struct {
	Null   bool
	Items  []Parsed
	Faults []Fault // Batch-level faults
}

// ParseBatch decodes a raw peer response into items, turning every missing key
// or wrongly typed value into a Fault instead of an error
func ParseBatch(raw json.RawMessage, rules Rules) Decoded {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Decoded{
			Null:   true,
			Faults: []Fault{{Index: -1, Kind: FaultNullResponse}},
		}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return Decoded{
			Faults: []Fault{{Index: -1, Kind: FaultMalformed, Detail: "response is not a list"}},
		}
	}

	out := Decoded{Items: make([]Parsed, 0, len(elems))}
	for i, elem := range elems {
		out.Items = append(out.Items, parseItem(i, elem, rules))
	}
	return out
}

func parseItem(idx int, elem json.RawMessage, rules Rules) Parsed {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil || fields == nil {
		return Parsed{Faults: []Fault{{Index: idx, Kind: FaultMalformed, Detail: "item is not an object"}}}
	}

	d := &fieldDecoder{idx: idx, fields: fields, bad: make(map[string]bool)}
	item := model.FetchedItem{
		ID:        d.identifier("id"),
		URL:       d.str("url"),
		Text:      d.str("text"),
		Title:     d.str("title"),
		Timestamp: d.str("timestamp"),
		Username:  d.str("username"),
		DataType:  model.DataType(d.str("dataType")),
		Likes:     d.integer("likes"),
		Community: d.str("community"),
		Hashtags:  d.strings("hashtags"),
	}

	for _, name := range rules.Required {
		if d.bad[name] {
			continue
		}
		if !d.present(name) {
			d.fault(FaultMissingField, name, "")
		}
	}
	for _, name := range rules.NonEmpty {
		if d.bad[name] || !d.present(name) {
			continue
		}
		if fieldValue(item, name) == "" {
			d.fault(FaultMissingField, name, "empty")
		}
	}

	return Parsed{Item: item, Faults: d.faults}
}

// fieldDecoder reads loosely typed JSON fields, recording faults instead of failing
type fieldDecoder struct {
	idx    int
	fields map[string]json.RawMessage
	bad    map[string]bool
	faults []Fault
}

func (d *fieldDecoder) fault(kind FaultKind, field, detail string) {
	d.faults = append(d.faults, Fault{Index: d.idx, Kind: kind, Field: field, Detail: detail})
}

// raw returns the value for name, treating JSON null as absent
func (d *fieldDecoder) raw(name string) (json.RawMessage, bool) {
	v, ok := d.fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (d *fieldDecoder) present(name string) bool {
	_, ok := d.raw(name)
	return ok
}

func (d *fieldDecoder) str(name string) string {
	v, ok := d.raw(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		d.bad[name] = true
		d.fault(FaultMalformed, name, "expected string")
		return ""
	}
	return s
}

// identifier accepts strings and bare numbers, keeping numbers as their literal text
func (d *fieldDecoder) identifier(name string) string {
	v, ok := d.raw(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	d.bad[name] = true
	d.fault(FaultMalformed, name, "expected string or number")
	return ""
}

func (d *fieldDecoder) integer(name string) int {
	v, ok := d.raw(name)
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		d.bad[name] = true
		d.fault(FaultMalformed, name, "expected number")
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		d.bad[name] = true
		d.fault(FaultMalformed, name, fmt.Sprintf("bad number %q", n.String()))
		return 0
	}
	return int(f)
}

func (d *fieldDecoder) strings(name string) []string {
	v, ok := d.raw(name)
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(v, &out); err != nil {
		d.bad[name] = true
		d.fault(FaultMalformed, name, "expected list of strings")
		return nil
	}
	return out
}

// fieldValue returns the string value of a named item field
func fieldValue(item model.FetchedItem, name string) string {
	switch name {
	case "id":
		return item.ID
	case "url":
		return item.URL
	case "text":
		return item.Text
	case "title":
		return item.Title
	case "timestamp":
		return item.Timestamp
	case "username":
		return item.Username
	case "dataType":
		return string(item.DataType)
	case "community":
		return item.Community
	}
	return ""
}
