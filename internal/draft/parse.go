package draft

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// RawDraftResponse is what the language model handed back, before parsing.
// Exactly one of Structured, JSONText or FreeText implements it.
type RawDraftResponse interface {
	rawDraft()
}

// Structured is a response that already arrived as a decoded object.
type Structured struct {
	Object map[string]any
}

// JSONText is a response that looks like JSON, possibly fenced.
type JSONText struct {
	Text string
}

// FreeText is prose that may or may not embed a JSON object.
type FreeText struct {
	Text string
}

func (Structured) rawDraft() {}
func (JSONText) rawDraft()   {}
func (FreeText) rawDraft()   {}

// Classify tags model output text.
func Classify(text string) RawDraftResponse {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "{") || strings.HasPrefix(t, "```") {
		return JSONText{Text: text}
	}
	return FreeText{Text: text}
}

// Parsed is the outcome of the parse chain.
type Parsed struct {
	Variants model.Drafts
	// Stage is the chain step that produced the variants: "structured",
	// "json", "span" or "heuristic".
	Stage string
}

// FallbackUsed reports whether the heuristic text split was needed.
func (p Parsed) FallbackUsed() bool { return p.Stage == "heuristic" }

// Parse runs the fallback chain over a raw response. It returns a ParseError
// only when no stage yields a variant.
func Parse(raw RawDraftResponse, company string, catalog []config.VariantSpec) (Parsed, *model.Failure) {
	var text string
	switch r := raw.(type) {
	case Structured:
		if v := variantsFromMembers(membersFromMap(r.Object, catalog), company, catalog); len(v) > 0 {
			return Parsed{Variants: v, Stage: "structured"}, nil
		}
		return Parsed{}, model.NewFailure(model.ErrParse, model.StageDraft, "structured response has no usable variants")
	case JSONText:
		text = r.Text
	case FreeText:
		text = r.Text
	}

	if obj, ok := DecodeJSONText(text); ok {
		if v := variantsFromMembers(obj, company, catalog); len(v) > 0 {
			return Parsed{Variants: v, Stage: "json"}, nil
		}
	}
	if obj, ok := DecodeJSONSpan(text); ok {
		if v := variantsFromMembers(obj, company, catalog); len(v) > 0 {
			return Parsed{Variants: v, Stage: "span"}, nil
		}
	}
	if v := SplitText(text, company, catalog); len(v) > 0 {
		return Parsed{Variants: v, Stage: "heuristic"}, nil
	}
	return Parsed{}, model.NewFailure(model.ErrParse, model.StageDraft, "response could not be interpreted as drafts")
}

// Member is one key/value pair of a JSON object, in document order.
type Member struct {
	Key   string
	Value json.RawMessage
}

// DecodeJSONText parses the whole text as a JSON object after removing
// code fences. Control characters are stripped on a second attempt.
func DecodeJSONText(text string) ([]Member, bool) {
	t := stripFences(text)
	if m, err := decodeObject([]byte(t)); err == nil {
		return m, true
	}
	if m, err := decodeObject([]byte(stripControl(t))); err == nil {
		return m, true
	}
	return nil, false
}

// DecodeJSONSpan parses the span from the first '{' to the last '}'.
func DecodeJSONSpan(text string) ([]Member, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	span := text[start : end+1]
	if m, err := decodeObject([]byte(span)); err == nil {
		return m, true
	}
	if m, err := decodeObject([]byte(stripControl(span))); err == nil {
		return m, true
	}
	return nil, false
}

func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if idx := strings.LastIndex(t, "```"); idx >= 0 {
			t = t[:idx]
		}
	}
	return strings.TrimSpace(t)
}

// stripControl removes C0 and C1 control characters.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}

var (
	errNotObject    = errors.New("draft: not a JSON object")
	errTrailingData = errors.New("draft: trailing data after JSON object")
)

func decodeObject(data []byte) ([]Member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}
	var out []Member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, Member{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errTrailingData
	}
	return out, nil
}

// membersFromMap orders a decoded map: catalog keys first, then the rest
// alphabetically.
func membersFromMap(obj map[string]any, catalog []config.VariantSpec) []Member {
	seen := make(map[string]bool, len(obj))
	var out []Member
	add := func(k string) {
		raw, err := json.Marshal(obj[k])
		if err != nil {
			return
		}
		out = append(out, Member{Key: k, Value: raw})
		seen[k] = true
	}
	for _, vs := range catalog {
		if _, ok := obj[vs.Key]; ok {
			add(vs.Key)
		}
	}
	rest := make([]string, 0, len(obj))
	for k := range obj {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		add(k)
	}
	return out
}

// wrapperKeys are envelope members some responses nest the variants under.
var wrapperKeys = []string{"variations", "variants", "emails"}

func variantsFromMembers(members []Member, company string, catalog []config.VariantSpec) model.Drafts {
	for _, m := range members {
		for _, w := range wrapperKeys {
			if m.Key == w {
				if inner, err := decodeObject(m.Value); err == nil {
					return variantsFromMembers(inner, company, catalog)
				}
			}
		}
	}

	out := model.Drafts{}
	for _, m := range members {
		if m.Key == "" || strings.HasPrefix(m.Key, "_") {
			continue
		}
		spec := lookup(catalog, m.Key)
		v, ok := variantFromJSON(m.Key, m.Value, spec != nil)
		if !ok {
			continue
		}
		out.Set(finish(v, company, spec))
	}
	return out
}

type rawVariant struct {
	Label                string `json:"label"`
	Subject              string `json:"subject"`
	Body                 string `json:"body"`
	Product              string `json:"product"`
	CTA                  string `json:"cta"`
	Tone                 string `json:"tone"`
	PersonalizationScore any    `json:"personalization_score"`
}

// variantFromJSON decodes one member. A bare string is accepted as a body
// only for catalog keys.
func variantFromJSON(key string, raw json.RawMessage, known bool) (model.DraftVariant, bool) {
	var body string
	if err := json.Unmarshal(raw, &body); err == nil {
		if !known || strings.TrimSpace(body) == "" {
			return model.DraftVariant{}, false
		}
		return model.DraftVariant{Key: key, Body: body}, true
	}

	var rv rawVariant
	if err := json.Unmarshal(raw, &rv); err != nil {
		return model.DraftVariant{}, false
	}
	if rv.Subject == "" && rv.Body == "" {
		return model.DraftVariant{}, false
	}
	v := model.DraftVariant{
		Key:     key,
		Label:   rv.Label,
		Subject: strings.TrimSpace(rv.Subject),
		Body:    strings.TrimSpace(rv.Body),
		CTA:     rv.CTA,
		Tone:    rv.Tone,
	}
	if rv.Product != "" {
		p := rv.Product
		v.Product = &p
	}
	if f, ok := toFloat64(rv.PersonalizationScore); ok {
		v.PersonalizationScore = &f
	}
	return v, true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func lookup(catalog []config.VariantSpec, key string) *config.VariantSpec {
	for i := range catalog {
		if catalog[i].Key == key {
			return &catalog[i]
		}
	}
	return nil
}

// finish fills labels and catalog defaults, then placeholders so subject and
// body are never empty.
func finish(v model.DraftVariant, company string, spec *config.VariantSpec) model.DraftVariant {
	if spec != nil {
		if v.Label == "" {
			v.Label = spec.Label
		}
		if v.Product == nil && spec.Product != "" {
			p := spec.Product
			v.Product = &p
		}
		if v.Tone == "" {
			v.Tone = spec.Tone
		}
	}
	if v.Label == "" {
		v.Label = v.Key
	}
	if strings.TrimSpace(v.Subject) == "" {
		v.Subject = PlaceholderSubject(company)
	}
	if strings.TrimSpace(v.Body) == "" {
		v.Body = PlaceholderBody
	}
	return v
}

// PlaceholderBody replaces an empty body.
const PlaceholderBody = "(no content)"

// PlaceholderSubject replaces an empty subject.
func PlaceholderSubject(company string) string {
	if company == "" {
		company = "Your company"
	}
	return company + " — outreach"
}

var (
	separatorLine = regexp.MustCompile(`^\s*-{3,}\s*$`)
	subjectLine   = regexp.MustCompile(`(?i)^\s*(?:[#*>]+\s*)?(?:\d+[.)]\s*)?(?:subject|제목)\s*(?:\*\*)?\s*[:：]\s*(?:\*\*)?\s*(.*)$`)
)

// SplitSubject splits a leading "Subject:" or "제목:" line off text. ok is
// false when the first non-blank line is not a subject heading.
func SplitSubject(text string) (subject, body string, ok bool) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 {
		return "", "", false
	}
	m := subjectLine.FindStringSubmatch(lines[0])
	if m == nil {
		return "", strings.TrimSpace(text), false
	}
	subject = strings.TrimSpace(strings.Trim(strings.TrimSpace(m[1]), "*"))
	body = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	return subject, body, true
}

// SplitText is the last-resort heuristic: it cuts free text into at most
// len(catalog) blocks on "---" lines or repeated subject headings and
// assigns catalog keys in order.
func SplitText(text string, company string, catalog []config.VariantSpec) model.Drafts {
	blocks := splitBlocks(stripFences(text))
	if len(catalog) == 0 {
		catalog = config.DefaultVariants()
	}
	if len(blocks) > len(catalog) {
		blocks = blocks[:len(catalog)]
	}

	out := model.Drafts{}
	for i, b := range blocks {
		spec := catalog[i]
		subject, body, _ := SplitSubject(b)
		out.Set(finish(model.DraftVariant{Key: spec.Key, Subject: subject, Body: body}, company, &spec))
	}
	return out
}

func splitBlocks(text string) []string {
	lines := strings.Split(text, "\n")

	hasSeparator := false
	for _, l := range lines {
		if separatorLine.MatchString(l) {
			hasSeparator = true
			break
		}
	}

	var blocks []string
	var cur []string
	flush := func() {
		if b := strings.TrimSpace(strings.Join(cur, "\n")); b != "" {
			blocks = append(blocks, b)
		}
		cur = nil
	}

	if hasSeparator {
		for _, l := range lines {
			if separatorLine.MatchString(l) {
				flush()
				continue
			}
			cur = append(cur, l)
		}
		flush()
		return blocks
	}

	headings := 0
	for _, l := range lines {
		if subjectLine.MatchString(l) {
			headings++
		}
	}
	if headings < 2 {
		if b := strings.TrimSpace(text); b != "" {
			return []string{b}
		}
		return nil
	}

	preamble := true
	for _, l := range lines {
		if subjectLine.MatchString(l) {
			if preamble {
				cur = nil
				preamble = false
			} else {
				flush()
			}
		}
		cur = append(cur, l)
	}
	flush()
	return blocks
}
