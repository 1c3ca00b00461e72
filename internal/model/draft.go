package model

import (
	"bytes"
	"encoding/json"
)

// Mode selects how user-supplied text is used when drafting.
type Mode string

const (
	ModeDefault  Mode = "default"
	ModeTemplate Mode = "template"
	ModeRequest  Mode = "request"
)

// ParseMode maps user input onto a Mode. Unknown values become ModeDefault.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeTemplate, ModeRequest:
		return Mode(s)
	}
	return ModeDefault
}

// ResolveMode derives the effective mode from the requested one and whether
// user text was supplied.
func ResolveMode(requested Mode, userText *string) Mode {
	if userText == nil || *userText == "" {
		return ModeDefault
	}
	if requested == ModeRequest {
		return ModeRequest
	}
	return ModeTemplate
}

// RankingAnnotation is attached to a variant when ranking ran.
type RankingAnnotation struct {
	RankScore    float64         `json:"rank_score"`
	Confidence   float64         `json:"confidence"`
	Rationale    string          `json:"rationale"`
	Method       string          `json:"method"`
	IsTopPick    bool            `json:"is_top_pick"`
	Distribution map[int]float64 `json:"distribution,omitempty"`
}

// DraftVariant is one named draft for one company.
type DraftVariant struct {
	Key                  string             `json:"key"`
	Label                string             `json:"label"`
	Subject              string             `json:"subject"`
	Body                 string             `json:"body"`
	Product              *string            `json:"product"`
	CTA                  string             `json:"cta,omitempty"`
	Tone                 string             `json:"tone,omitempty"`
	PersonalizationScore *float64           `json:"personalization_score,omitempty"`
	Score                *float64           `json:"score"`
	Ranking              *RankingAnnotation `json:"ranking,omitempty"`
}

// Text renders the variant the way collaborators receive it.
func (v DraftVariant) Text() string {
	return "Subject: " + v.Subject + "\n\n" + v.Body
}

// Drafts is an insertion-ordered set of variants keyed by DraftVariant.Key.
// It encodes as a JSON object whose member order is the insertion order.
type Drafts []DraftVariant

// Get returns the variant stored under key.
func (d Drafts) Get(key string) (DraftVariant, bool) {
	for _, v := range d {
		if v.Key == key {
			return v, true
		}
	}
	return DraftVariant{}, false
}

// Keys returns the variant keys in insertion order.
func (d Drafts) Keys() []string {
	keys := make([]string, len(d))
	for i, v := range d {
		keys[i] = v.Key
	}
	return keys
}

// Set replaces the variant with the same key in place or appends it.
func (d *Drafts) Set(v DraftVariant) {
	for i := range *d {
		if (*d)[i].Key == v.Key {
			(*d)[i] = v
			return
		}
	}
	*d = append(*d, v)
}

// Update applies fn to the variant stored under key. It reports whether the
// key exists.
func (d Drafts) Update(key string, fn func(*DraftVariant)) bool {
	for i := range d {
		if d[i].Key == key {
			fn(&d[i])
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (d Drafts) Clone() Drafts {
	if d == nil {
		return nil
	}
	out := make(Drafts, len(d))
	for i, v := range d {
		if v.Ranking != nil {
			r := *v.Ranking
			v.Ranking = &r
		}
		out[i] = v
	}
	return out
}

// TopPick returns the variant flagged as top pick, if any.
func (d Drafts) TopPick() (DraftVariant, bool) {
	for _, v := range d {
		if v.Ranking != nil && v.Ranking.IsTopPick {
			return v, true
		}
	}
	return DraftVariant{}, false
}

// MarshalJSON encodes the drafts as an ordered object keyed by variant key.
func (d Drafts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(v.Key)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an ordered object. The object key wins over an
// embedded "key" member.
func (d *Drafts) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*d = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := Drafts{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v DraftVariant
		if err := dec.Decode(&v); err != nil {
			return err
		}
		v.Key = key
		out = append(out, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}
