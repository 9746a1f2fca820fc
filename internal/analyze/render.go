package analyze

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title   lipgloss.Style
	heading lipgloss.Style
	count   lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		count:   r.NewStyle().Foreground(lipgloss.Color("42")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// RenderLoadErrors prints one line per file that failed to load.
func RenderLoadErrors(w io.Writer, errs []*LoadError) {
	st := newStyles(w)
	for _, e := range errs {
		fmt.Fprintln(w, st.warn.Render("Error loading "+e.Error()))
	}
}

// Render prints the report as a human-readable summary.
func Render(w io.Writer, rep Report) {
	st := newStyles(w)

	fmt.Fprintln(w, st.title.Render(fmt.Sprintf("Analyzing %d captured requests", rep.Total)))
	if rep.Filter != "" {
		fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("Filtered to %d requests containing %q", len(rep.Records), rep.Filter)))
	}
	if len(rep.Records) == 0 {
		if rep.Filter != "" {
			fmt.Fprintln(w, "No requests match the filter.")
		} else {
			fmt.Fprintln(w, "No requests to analyze.")
		}
		return
	}

	section(w, st, "Request methods")
	for _, c := range rep.Methods {
		fmt.Fprintf(w, "  %s: %s\n", c.Key, st.count.Render(fmt.Sprint(c.Count)))
	}

	section(w, st, "Endpoints hit")
	for _, c := range rep.Endpoints {
		fmt.Fprintf(w, "  %s - %s\n", st.count.Render(fmt.Sprintf("%3d", c.Count)), c.Key)
	}

	section(w, st, "Content types")
	for _, c := range rep.ContentTypes {
		fmt.Fprintf(w, "  %s - %s\n", st.count.Render(fmt.Sprintf("%3d", c.Count)), c.Key)
	}

	section(w, st, "Sample requests")
	for i, s := range rep.Samples {
		fmt.Fprintf(w, "\n  %d. %s %s\n", i+1, s.Method, s.URL)
		fmt.Fprintf(w, "     %s %s\n", st.muted.Render("Content-Type:"), s.ContentType)
		if s.BodyPreview != "" {
			fmt.Fprintf(w, "     %s %s\n", st.muted.Render("Body:"), s.BodyPreview)
		}
	}
}

func section(w io.Writer, st styles, name string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.heading.Render(strings.ToUpper(name)+":"))
}
