package templates

import (
	"embed"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed *.html
var htmlFiles embed.FS

var Page,
	Dashboard,
	Cards,
	Merchant *template.Template

// Init parses the embedded templates. assetPath is the content-hashed
// stylesheet path from the static package.
func Init(assetPath string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	printer := message.NewPrinter(language.English)
	title := cases.Title(language.English)
	funcs := template.FuncMap{
		"StylesheetPath": func() string { return assetPath },
		"count":          func(n int) string { return printer.Sprintf("%d", n) },
		"issueCode":      IssueCode,
		"regionTitle":    func(region string) string { return title.String(region) },
		"upper":          strings.ToUpper,
		"lastUpdated":    func(t time.Time) string { return FormatUpdated(t, loc) },
		"plural": func(n int, one, many string) string {
			if n == 1 {
				return one
			}
			return many
		},
	}
	tmpls, err := template.New("all").Funcs(funcs).ParseFS(htmlFiles, "*.html")
	if err != nil {
		return err
	}
	Page = ensure(tmpls, "page.html")
	Dashboard = ensure(tmpls, "dashboard.html")
	Cards = ensure(tmpls, "cards.html")
	Merchant = ensure(tmpls, "merchant.html")
	return nil
}

func ensure(templates *template.Template, name string) *template.Template {
	tmpl := templates.Lookup(name)
	if tmpl == nil {
		panic("template " + name + " not found")
	}
	return tmpl
}

// IssueCode turns upstream codes like price_mismatch into PRICE MISMATCH.
func IssueCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(code, "_", " "))
}

// FormatUpdated renders t as "19 Oct 2026, 14:05" in loc.
func FormatUpdated(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format("02 Jan 2006, 15:04")
}
