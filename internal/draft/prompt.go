package draft

import (
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

const systemPrompt = `You write first-touch B2B sales emails for %s. Every email must reference something ` +
	`specific about the recipient company, raise one concrete problem, state the value with figures, and end with ` +
	`a clear call to action. Reply with a single JSON object and nothing else.`

const researchUnavailable = "No research is available for this company. Rely on the company fields above " +
	"and keep claims about the company general."

// BuildSystem renders the system prompt for a sender.
func BuildSystem(sender string) string {
	if sender == "" {
		sender = "our team"
	}
	return fmt.Sprintf(systemPrompt, sender)
}

// BuildPrompt renders the user prompt for one company in the given mode.
func BuildPrompt(company model.CompanyRecord, research model.ResearchResult, mode model.Mode, userText string, catalog []config.VariantSpec) string {
	var b strings.Builder

	b.WriteString("## Company\n")
	for _, f := range company.Fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
	}

	b.WriteString("\n## Research\n")
	if research.Success && research.Findings != nil {
		b.WriteString(*research.Findings)
		b.WriteString("\n")
		if research.IndustryTrends != nil {
			fmt.Fprintf(&b, "\nIndustry trends:\n%s\n", *research.IndustryTrends)
		}
		if len(research.Headlines) > 0 {
			b.WriteString("\nRecent headlines:\n")
			for _, h := range research.Headlines {
				fmt.Fprintf(&b, "- %s\n", h)
			}
		}
	} else {
		b.WriteString(researchUnavailable)
		b.WriteString("\n")
	}

	switch mode {
	case model.ModeTemplate:
		b.WriteString("\n## Template\n")
		b.WriteString("The text below is the email the user wants to send. Keep it as roughly 90% of each body, ")
		b.WriteString("unchanged. Only prepend a short opening hook tied to the research, and write a subject.\n\n")
		b.WriteString(userText)
		b.WriteString("\n")
	case model.ModeRequest:
		b.WriteString("\n## Request\n")
		b.WriteString("Write the emails so they satisfy this instruction from the user:\n\n")
		b.WriteString(userText)
		b.WriteString("\n")
	}

	b.WriteString("\n## Output\n")
	b.WriteString("Return one JSON object with exactly these members, each an object with ")
	b.WriteString(`"product", "subject", "body", "cta", "tone" and "personalization_score" (1-10):` + "\n")
	for _, vs := range catalog {
		fmt.Fprintf(&b, "- %q: product %q, tone %q\n", vs.Key, vs.Product, vs.Tone)
	}
	return b.String()
}
