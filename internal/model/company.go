package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Well-known column names. The Korean names match the spreadsheets the sales
// team exports; the English names are accepted as aliases.
const (
	ColCompanyName  = "companyName"
	ColContactName  = "contactName"
	ColContactTitle = "contactTitle"
	ColWebsite      = "website"
	ColEmail        = "email"
	ColIndustry     = "industry"
)

// ColumnAliases maps every accepted header spelling onto its canonical column.
var ColumnAliases = map[string]string{
	"companyName":  ColCompanyName,
	"company":      ColCompanyName,
	"company_name": ColCompanyName,
	"회사명":          ColCompanyName,
	"contactName":  ColContactName,
	"대표자명":         ColContactName,
	"contactTitle": ColContactTitle,
	"직책":           ColContactTitle,
	"website":      ColWebsite,
	"홈페이지링크":       ColWebsite,
	"email":        ColEmail,
	"대표이메일":        ColEmail,
	"industry":     ColIndustry,
	"업종":           ColIndustry,
}

// CanonicalColumn returns the canonical name for a header, or "" if it is
// not a well-known column.
func CanonicalColumn(header string) string {
	return ColumnAliases[strings.TrimSpace(header)]
}

// Field is one column of an input row.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CompanyRecord is one normalized input row. Fields keep the input column
// order; Index is the row position within the normalized sequence.
type CompanyRecord struct {
	Index  int     `json:"index"`
	Fields []Field `json:"fields"`
}

// NewCompanyRecord builds a record from ordered key/value pairs.
func NewCompanyRecord(index int, kv ...string) CompanyRecord {
	rec := CompanyRecord{Index: index}
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Fields = append(rec.Fields, Field{Key: kv[i], Value: kv[i+1]})
	}
	return rec
}

// Get returns the value for a column. Well-known columns are matched through
// their aliases, so Get(ColCompanyName) finds a "회사명" column.
func (c CompanyRecord) Get(key string) string {
	for _, f := range c.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	canon := CanonicalColumn(key)
	if canon == "" {
		return ""
	}
	for _, f := range c.Fields {
		if CanonicalColumn(f.Key) == canon {
			return f.Value
		}
	}
	return ""
}

// Name returns the trimmed company name.
func (c CompanyRecord) Name() string {
	return strings.TrimSpace(c.Get(ColCompanyName))
}

// Map returns the fields as a plain map, as sent to the research service.
func (c CompanyRecord) Map() map[string]string {
	m := make(map[string]string, len(c.Fields))
	for _, f := range c.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// Keys returns the column names in input order.
func (c CompanyRecord) Keys() []string {
	keys := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON encodes the record as an ordered JSON object of its columns
// plus an "_index" member.
func (c CompanyRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	idx, _ := json.Marshal(c.Index)
	buf.WriteString(`"_index":`)
	buf.Write(idx)
	for _, f := range c.Fields {
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an ordered JSON object. Non-string values are kept
// as their JSON text.
func (c *CompanyRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	c.Fields = nil
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if key == "_index" {
			if err := json.Unmarshal(raw, &c.Index); err != nil {
				return err
			}
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		c.Fields = append(c.Fields, Field{Key: key, Value: s})
	}
	_, err := dec.Token()
	return err
}
