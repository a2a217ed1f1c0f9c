package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the prompts and model parameters used by the classifier
type PromptConfig struct {
	Classification PromptSpec `yaml:"classification"`
}

// PromptSpec is one system/user prompt pair
type PromptSpec struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

const defaultSystemPrompt = `You reconcile construction invoices against project estimates.
Given one invoice line item and a numbered list of estimate line items, pick the estimate
line item the charge belongs to. Respond only with a JSON object:
{"candidate_index": <number from the list, or -1 if none fits>, "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

const defaultUserTemplate = `Invoice line item: {{.Description}}
Amount: {{printf "%.2f" .Amount}}

Estimate line items:
{{range $i, $c := .Candidates}}{{$i}}. {{$c.Description}} (trade: {{$c.TradeName}}{{if $c.Unit}}, unit: {{$c.Unit}}{{end}}, estimate: {{printf "%.2f" $c.EstimateTotal}})
{{end}}`

// DefaultPrompts returns the built-in prompt set
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		Classification: PromptSpec{
			Temperature:  0,
			MaxTokens:    200,
			System:       defaultSystemPrompt,
			UserTemplate: defaultUserTemplate,
		},
	}
}

// LoadPrompts loads prompt configuration from a YAML file. Sections missing
// from the file keep their built-in values. An empty path returns the defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	prompts := DefaultPrompts()
	if promptsPath == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
