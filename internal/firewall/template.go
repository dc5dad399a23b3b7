package firewall

import (
	"strings"

	"github.com/valyala/fasttemplate"
)

// Template variable names available in configured anchor rule lines.
const (
	TmplInterface = "interface"
)

// RenderRules substitutes template variables in each configured rule line.
// Lines without template markers pass through untouched.
func RenderRules(templates []string, interfaceName string) []string {
	vars := map[string]interface{}{
		TmplInterface: interfaceName,
	}

	rendered := make([]string, len(templates))
	for i, tmpl := range templates {
		if !strings.Contains(tmpl, "{{") {
			rendered[i] = tmpl
			continue
		}
		rendered[i] = fasttemplate.New(tmpl, "{{", "}}").ExecuteString(vars)
	}
	return rendered
}
