package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

var catalog = config.DefaultVariants()

func TestClassify(t *testing.T) {
	assert.IsType(t, JSONText{}, Classify(`  {"a":1}`))
	assert.IsType(t, JSONText{}, Classify("```json\n{}\n```"))
	assert.IsType(t, FreeText{}, Classify("Here you go: {}"))
}

func TestParseStructured(t *testing.T) {
	p, f := Parse(Structured{Object: map[string]any{
		"zeta":          map[string]any{"subject": "Z", "body": "z"},
		"opi_curiosity": map[string]any{"subject": "C", "body": "c"},
		"note":          "ignored",
	}}, "Acme", catalog)
	require.Nil(t, f)
	assert.Equal(t, "structured", p.Stage)
	assert.Equal(t, []string{"opi_curiosity", "zeta"}, p.Variants.Keys())
	z, _ := p.Variants.Get("zeta")
	assert.Equal(t, "zeta", z.Label)
}

func TestParseStructuredEmpty(t *testing.T) {
	_, f := Parse(Structured{Object: map[string]any{}}, "Acme", catalog)
	require.NotNil(t, f)
	assert.Equal(t, model.ErrParse, f.Kind)
}

func TestParseJSONTextFenced(t *testing.T) {
	text := "```json\n{\"opi_professional\": {\"subject\": \"Hi\", \"body\": \"There\"}}\n```"
	p, f := Parse(Classify(text), "Acme", catalog)
	require.Nil(t, f)
	assert.Equal(t, "json", p.Stage)
	v, ok := p.Variants.Get("opi_professional")
	require.True(t, ok)
	assert.Equal(t, "Hi", v.Subject)
	assert.Equal(t, "There", v.Body)
}

func TestParseJSONTextControlCharacters(t *testing.T) {
	text := "{\"opi_professional\": {\"subject\": \"Hi\", \"body\": \"line one\nline two\"}}"
	p, f := Parse(Classify(text), "Acme", catalog)
	require.Nil(t, f)
	assert.Equal(t, "json", p.Stage)
	v, _ := p.Variants.Get("opi_professional")
	assert.Equal(t, "line oneline two", v.Body)
}

func TestParseEmbeddedSpan(t *testing.T) {
	text := `Sure! Here are the emails:
{"finance_curiosity": {"subject": "Q", "body": "B"}, "variations_note": "x"}
Let me know if you need changes.`
	p, f := Parse(Classify(text), "Acme", catalog)
	require.Nil(t, f)
	assert.Equal(t, "span", p.Stage)
	assert.Equal(t, []string{"finance_curiosity"}, p.Variants.Keys())
	assert.False(t, p.FallbackUsed())
}

func TestParseWrappedVariations(t *testing.T) {
	text := `{"variations": {"opi_professional": {"subject": "S", "body": "B"}}}`
	p, f := Parse(Classify(text), "Acme", catalog)
	require.Nil(t, f)
	assert.Equal(t, []string{"opi_professional"}, p.Variants.Keys())
}

func TestParsePlaceholders(t *testing.T) {
	text := `{"opi_professional": {"subject": "", "body": "Body only"}, "opi_curiosity": {"subject": "Subject only"}}`
	p, f := Parse(Classify(text), "Acme", catalog)
	require.Nil(t, f)

	v, _ := p.Variants.Get("opi_professional")
	assert.Equal(t, "Acme — outreach", v.Subject)
	v, _ = p.Variants.Get("opi_curiosity")
	assert.Equal(t, PlaceholderBody, v.Body)
}

func TestParseHeuristicSeparators(t *testing.T) {
	text := "Subject: First\nHello one\n---\nSecond body without subject\n---\n\n---\nSubject: Third\nHi\n---\nFourth\n---\nFifth is dropped"
	p, f := Parse(Classify(text), "Acme", catalog)
	require.Nil(t, f)
	assert.True(t, p.FallbackUsed())
	require.Len(t, p.Variants, 4)
	assert.Equal(t, []string{"opi_professional", "opi_curiosity", "finance_professional", "finance_curiosity"}, p.Variants.Keys())

	v, _ := p.Variants.Get("opi_professional")
	assert.Equal(t, "First", v.Subject)
	assert.Equal(t, "Hello one", v.Body)

	v, _ = p.Variants.Get("opi_curiosity")
	assert.Equal(t, "Acme — outreach", v.Subject)
	assert.Equal(t, "Second body without subject", v.Body)
}

func TestParseHeuristicSubjectHeadings(t *testing.T) {
	text := "Here are two drafts.\n\n**Subject:** Alpha\nBody A\n\n제목: 베타\n본문 B"
	p, f := Parse(Classify(text), "Acme", catalog)
	require.Nil(t, f)
	require.Len(t, p.Variants, 2)
	v, _ := p.Variants.Get("opi_curiosity")
	assert.Equal(t, "베타", v.Subject)
	assert.Equal(t, "본문 B", v.Body)
	v, _ = p.Variants.Get("opi_professional")
	assert.Equal(t, "Alpha", v.Subject)
}

func TestParseHeuristicSingleBlock(t *testing.T) {
	p, f := Parse(Classify("Just a plain email body."), "Acme", catalog)
	require.Nil(t, f)
	require.Len(t, p.Variants, 1)
	v := p.Variants[0]
	assert.Equal(t, "opi_professional", v.Key)
	assert.Equal(t, "Just a plain email body.", v.Body)
}

func TestParseNothing(t *testing.T) {
	_, f := Parse(FreeText{Text: "\n \n"}, "Acme", catalog)
	require.NotNil(t, f)
	assert.Equal(t, model.ErrParse, f.Kind)
	assert.Equal(t, model.StageDraft, f.Stage)
}

func TestSplitSubject(t *testing.T) {
	s, b, ok := SplitSubject("Subject: New line\n\nBody text")
	assert.True(t, ok)
	assert.Equal(t, "New line", s)
	assert.Equal(t, "Body text", b)

	s, b, ok = SplitSubject("제목: 짧은 제목\n본문")
	assert.True(t, ok)
	assert.Equal(t, "짧은 제목", s)
	assert.Equal(t, "본문", b)

	_, b, ok = SplitSubject("No heading here\nmore")
	assert.False(t, ok)
	assert.Equal(t, "No heading here\nmore", b)
}

func TestDecodeJSONSpanRejectsGarbage(t *testing.T) {
	_, ok := DecodeJSONSpan("no braces")
	assert.False(t, ok)
	_, ok = DecodeJSONSpan("} backwards {")
	assert.False(t, ok)
	_, ok = DecodeJSONSpan("{not json}")
	assert.False(t, ok)
}
