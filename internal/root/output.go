package root

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

type outputFormat interface {
	Name() string
	Format(w io.Writer, sessions []internal.Session, loc *time.Location) error
}

func outputFormats() []outputFormat {
	return []outputFormat{
		&denseOutputFormat{templateStr: denseTemplate},
		jsonOutputFormat{},
		yamlOutputFormat{},
		tableOutputFormat{},
	}
}

func outputFormatNamed(name string) (outputFormat, error) {
	names := make([]string, 0, 4)
	for _, f := range outputFormats() {
		if strings.EqualFold(f.Name(), name) {
			return f, nil
		}
		names = append(names, f.Name())
	}
	return nil, fmt.Errorf("invalid --format %q (valid: %s)", name, strings.Join(names, ", "))
}

const denseTemplate = `{{range .}}{{shortTime .DateTime}} | {{padCinema .Cinema}} | {{price .Price}} | {{.Name}}{{if .HasRussianSubtitles}} [sub]{{end}}
{{end}}`

// denseOutputFormat renders one session per line in the city's zone.
type denseOutputFormat struct {
	templateStr string
}

func (f *denseOutputFormat) Name() string { return "dense" }

func (f *denseOutputFormat) Format(w io.Writer, sessions []internal.Session, loc *time.Location) error {
	const cinemaColumnWidth = 28
	funcMap := template.FuncMap{
		"shortTime": func(t time.Time) string {
			return t.In(loc).Format("Mon Jan 02 15:04")
		},
		"padCinema": func(s string) string {
			if n := len([]rune(s)); n < cinemaColumnWidth {
				return s + strings.Repeat(" ", cinemaColumnWidth-n)
			}
			return s
		},
		"price": formatPrice,
	}
	tmpl, err := template.New("dense").Funcs(funcMap).Parse(f.templateStr)
	if err != nil {
		return fmt.Errorf("dense template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, sessions); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func formatPrice(price int) string {
	if price == internal.PriceUnavailable {
		return fmt.Sprintf("%6s", "-")
	}
	return fmt.Sprintf("%4d ₽", price)
}

type jsonOutputFormat struct{}

func (jsonOutputFormat) Name() string { return "json" }

func (jsonOutputFormat) Format(w io.Writer, sessions []internal.Session, _ *time.Location) error {
	if sessions == nil {
		sessions = []internal.Session{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sessions)
}

type yamlOutputFormat struct{}

func (yamlOutputFormat) Name() string { return "yaml" }

func (yamlOutputFormat) Format(w io.Writer, sessions []internal.Session, _ *time.Location) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sessions); err != nil {
		return err
	}
	return enc.Close()
}

type tableOutputFormat struct{}

func (tableOutputFormat) Name() string { return "table" }

func (tableOutputFormat) Format(w io.Writer, sessions []internal.Session, loc *time.Location) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Time", "Cinema", "Movie", "Price", "Subs"})
	for _, s := range sessions {
		subs := ""
		if s.HasRussianSubtitles {
			subs = "yes"
		}
		t.AppendRow(table.Row{s.DateTime.In(loc).Format("Jan 02 15:04"), s.Cinema, s.Name, formatPrice(s.Price), subs})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d sessions", len(sessions)), "", ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
