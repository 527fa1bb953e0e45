package rendering

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/flash-resume/internal/types"
)

const (
	// ThemeImport is the module every generated document imports its content functions from.
	ThemeImport = "src/resume.typ"

	// PersonalInfoMarker opens the author declaration. Editors hide everything above it.
	PersonalInfoMarker = "// PERSONAL INFORMATION"

	rule = "// =============================================================================="
)

// Options controls markup generation.
type Options struct {
	// EscapeStrings escapes quotes and backslashes inside string literals.
	// Off by default: values are embedded verbatim, and a value containing a double quote
	// produces markup the compiler rejects.
	EscapeStrings bool
}

// Render converts resume data into a Typst document for the given template.
// The output is a pure function of its inputs; the compiler is the validator.
func Render(data *types.ResumeData, cfg *types.TemplateConfig) string {
	return RenderWithOptions(data, cfg, Options{})
}

// RenderWithOptions is Render with explicit generation options.
func RenderWithOptions(data *types.ResumeData, cfg *types.TemplateConfig, opts Options) string {
	g := generator{opts: opts}

	displayName := ""
	if cfg != nil {
		displayName = cfg.DisplayName
	}

	g.banner("RESUME GENERATOR - AUTO-GENERATED FROM JSON",
		"Template: "+displayName,
		"Configuration loaded from: conf.json",
	)
	g.line("")
	g.line(fmt.Sprintf("#import %q: *", ThemeImport))
	g.line("")

	g.banner(strings.TrimPrefix(PersonalInfoMarker, "// "))
	if data != nil {
		g.personalInfo(&data.PersonalInfo)
	} else {
		g.personalInfo(&types.PersonalInfo{})
	}
	g.line("")

	g.banner("APPLY THEME WITH DATA",
		"Configuration is automatically loaded from conf.json by the template",
	)
	g.line("#show: resume.with(author-info)")
	g.line("")

	g.banner("RESUME CONTENT")
	g.line("")

	if data != nil {
		for _, section := range data.Sections {
			g.section(section)
		}
	}

	return g.sb.String()
}

type generator struct {
	sb   strings.Builder
	opts Options
}

func (g *generator) line(s string) {
	g.sb.WriteString(s)
	g.sb.WriteByte('\n')
}

func (g *generator) banner(lines ...string) {
	g.line(rule)
	for _, l := range lines {
		g.line("// " + l)
	}
	g.line(rule)
}

func (g *generator) quote(s string) string {
	if g.opts.EscapeStrings {
		s = EscapeTypstString(s)
	}
	return `"` + s + `"`
}

func (g *generator) personalInfo(p *types.PersonalInfo) {
	g.line("#let author-info = (")
	g.line(fmt.Sprintf("  firstname: %s,", g.quote(p.Firstname)))
	g.line(fmt.Sprintf("  lastname: %s,", g.quote(p.Lastname)))
	g.line(fmt.Sprintf("  email: %s,", g.quote(p.Email)))

	optional := []struct {
		key   string
		value *string
	}{
		{"homepage", p.Homepage},
		{"phone", p.Phone},
		{"github", p.GitHub},
		{"twitter", p.Twitter},
		{"scholar", p.Scholar},
		{"orcid", p.ORCID},
		{"birth", p.Birth},
		{"linkedin", p.LinkedIn},
		{"address", p.Address},
	}
	for _, field := range optional {
		if field.value != nil {
			g.line(fmt.Sprintf("  %s: %s,", field.key, g.quote(*field.value)))
		}
	}
	if p.Positions != nil {
		g.line(fmt.Sprintf("  positions: %s,", g.tuple(p.Positions)))
	}

	g.line(")")
}

func (g *generator) section(section types.Section) {
	g.line("= " + section.Title)
	g.line("")
	for _, item := range section.Items {
		g.function(item)
	}
	g.line("")
}

func (g *generator) function(item types.Item) {
	g.line("#" + item.Type + "(")
	for _, field := range item.Data {
		g.argument(field)
	}
	g.line(")")
	g.line("")
}

func (g *generator) argument(field types.Field) {
	list, isList := field.Value.([]any)
	if !isList {
		g.line(fmt.Sprintf("  %s: %s,", field.Key, g.scalar(field.Value)))
		return
	}

	if len(list) > 0 {
		if _, ok := list[0].(string); ok {
			g.line(fmt.Sprintf("  %s: [", field.Key))
			for _, v := range list {
				g.line("    - " + plain(v))
			}
			g.line("  ],")
			return
		}
	}

	values := make([]string, len(list))
	for i, v := range list {
		values[i] = plain(v)
	}
	g.line(fmt.Sprintf("  %s: %s,", field.Key, g.tuple(values)))
}

func (g *generator) scalar(v any) string {
	if v == nil {
		return "none"
	}
	return g.quote(plain(v))
}

// tuple renders a Typst array of strings. A single element needs a trailing comma,
// otherwise Typst reads the parentheses as grouping.
func (g *generator) tuple(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = g.quote(v)
	}
	if len(quoted) == 1 {
		return "(" + quoted[0] + ",)"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

// plain formats a decoded JSON value as text.
func plain(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case map[string]any, []any:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(out)
	default:
		return fmt.Sprint(val)
	}
}
