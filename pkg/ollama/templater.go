package ollama

import (
	"bytes"
	"strings"
	"text/template"
)

// PromptFuncs are available to every prompt template.
var PromptFuncs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// RenderTemplate renders a prompt template with the provided data.
func RenderTemplate(tmpl string, data any) (string, error) {
	tpl, err := template.New("prompt").Funcs(PromptFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
