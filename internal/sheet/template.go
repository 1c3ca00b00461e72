package sheet

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Template is the legacy non-AI email. {company} and {contact} are replaced
// per row.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// DefaultTemplate is used when no template file is configured.
func DefaultTemplate() Template {
	return Template{
		Subject: "[PortOne] {company} 결제 인프라 제안",
		Body: "안녕하세요, {company} {contact}님.\n\n" +
			"코리아포트원입니다. 결제 시스템 통합과 운영 비용 절감을 도와드리는 One Payment Infra를 소개드리고자 연락드렸습니다.\n\n" +
			"15분 정도 간단히 통화 가능하실까요?\n\n감사합니다.",
	}
}

// LoadTemplate reads a YAML template file. An empty path returns the default.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, eris.Wrapf(err, "sheet: read template %s", path)
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, eris.Wrapf(err, "sheet: parse template %s", path)
	}
	if strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Body) == "" {
		return Template{}, eris.Errorf("sheet: template %s needs subject and body", path)
	}
	return t, nil
}

// Render fills the placeholders from rec.
func (t Template) Render(rec model.CompanyRecord) (subject, body string) {
	contact := strings.TrimSpace(rec.Get(model.ColContactName))
	if contact == "" {
		contact = "담당자"
	}
	r := strings.NewReplacer("{company}", rec.Name(), "{contact}", contact)
	return r.Replace(t.Subject), r.Replace(t.Body)
}
