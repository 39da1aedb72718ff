package cellar

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// RenderTemplate substitutes {{name}} placeholders in a query template.
// A placeholder with no matching variable is an error: sending a query
// with a literal {{celex}} to the endpoint would return an empty result
// set and hide the real problem.
func RenderTemplate(template string, vars map[string]string) (string, error) {
	rendered := template
	for key, value := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+key+"}}", value)
	}

	if match := placeholderPattern.FindString(rendered); match != "" {
		return "", fmt.Errorf("unresolved template placeholder %s", match)
	}
	return rendered, nil
}
