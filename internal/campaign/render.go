package campaign

import (
	"html"
	"regexp"
	"strings"

	"github.com/sells-group/recruit-cli/internal/model"
)

// Vars is the merge-tag context a template renders against.
type Vars map[string]string

var mergeTag = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*(?:\|([^}]*))?\}\}`)

// VarsFor builds the merge-tag context of a send target.
func VarsFor(t model.SendTarget) Vars {
	return Vars{
		"first_name": t.FirstName,
		"last_name":  t.LastName,
		"full_name":  strings.TrimSpace(t.FirstName + " " + t.LastName),
		"email":      t.Email,
		"company":    t.CurrentCompany,
		"title":      t.CurrentTitle,
		"location":   t.Location,
	}
}

// Render replaces {{tag}} and {{tag|fallback}} with values from vars.
// Unknown or empty tags render as their fallback, or nothing.
func Render(tmpl string, vars Vars) string {
	return render(tmpl, vars, func(s string) string { return s })
}

// RenderHTML is Render with values HTML-escaped, for message bodies.
func RenderHTML(tmpl string, vars Vars) string {
	return render(tmpl, vars, html.EscapeString)
}

func render(tmpl string, vars Vars, escape func(string) string) string {
	return mergeTag.ReplaceAllStringFunc(tmpl, func(tag string) string {
		m := mergeTag.FindStringSubmatch(tag)
		v := strings.TrimSpace(vars[strings.ToLower(m[1])])
		if v == "" {
			v = strings.TrimSpace(m[2])
		}
		return escape(v)
	})
}
