package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"wphunter/internal/domain"
	"wphunter/internal/ports"
)

// New selects a reporter by format name. An empty output path means stdout.
func New(format, output string) (ports.Reporter, error) {
	switch format {
	case "", "json":
		return &JSONReporter{Output: output}, nil
	case "csv":
		return &CSVReporter{Output: output}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

func closeOutput(w io.WriteCloser) error {
	if w == os.Stdout {
		return nil
	}
	return w.Close()
}

// JSONReporter renders the full run result as an indented JSON document.
type JSONReporter struct {
	Output string
}

var _ ports.Reporter = (*JSONReporter)(nil)

type jsonCandidate struct {
	Slug               string    `json:"slug"`
	Name               string    `json:"name"`
	Author             string    `json:"author"`
	ActiveInstalls     int       `json:"active_installs"`
	LastUpdated        time.Time `json:"last_updated"`
	Tags               []string  `json:"tags,omitempty"`
	Category           string    `json:"category"`
	ChangelogSignal    int       `json:"changelog_signal"`
	Abandoned          bool      `json:"abandoned"`
	TrustedAuthor      bool      `json:"trusted_author"`
	Compatible         bool      `json:"compatible"`
	DangerousFunctions *int      `json:"dangerous_functions,omitempty"`
	AjaxHandlers       *int      `json:"ajax_handlers,omitempty"`
	ArchiveUnreadable  *bool     `json:"archive_unreadable,omitempty"`
	VPS                int       `json:"vps"`
	Severity           string    `json:"severity"`
}

type jsonDocument struct {
	GeneratedAt        time.Time       `json:"generated_at"`
	Status             string          `json:"status"`
	PagesFailed        int             `json:"pages_failed"`
	ArchivesUnreadable int             `json:"archives_unreadable"`
	Candidates         []jsonCandidate `json:"candidates"`
}

// Write renders the ranked candidates with their analysis annotations. Deep
// fields appear only when a deep result was attached.
func (r *JSONReporter) Write(result domain.RunResult) error {
	out, err := openOutput(r.Output)
	if err != nil {
		return fmt.Errorf("open report output: %w", err)
	}

	doc := jsonDocument{
		GeneratedAt:        time.Now().UTC(),
		Status:             string(result.Status),
		PagesFailed:        result.PagesFailed,
		ArchivesUnreadable: result.ArchivesUnreadable,
		Candidates:         make([]jsonCandidate, 0, len(result.Candidates)),
	}
	for _, c := range result.Candidates {
		item := jsonCandidate{
			Slug:            c.Record.Slug,
			Name:            c.Record.Name,
			Author:          c.Record.Author,
			ActiveInstalls:  c.Record.ActiveInstalls,
			LastUpdated:     c.Record.LastUpdated,
			Tags:            c.Record.Tags,
			Category:        string(c.Category),
			ChangelogSignal: c.ChangelogSignal,
			Abandoned:       c.Abandoned,
			TrustedAuthor:   c.TrustedAuthor,
			Compatible:      c.Compatible,
			VPS:             c.VPS,
			Severity:        string(c.Severity),
		}
		if c.Deep != nil {
			item.DangerousFunctions = &c.Deep.DangerousFunctions
			item.AjaxHandlers = &c.Deep.AjaxHandlers
			item.ArchiveUnreadable = &c.Deep.ArchiveUnreadable
		}
		doc.Candidates = append(doc.Candidates, item)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		_ = closeOutput(out)
		return fmt.Errorf("encode report: %w", err)
	}
	return closeOutput(out)
}

// CSVReporter renders one row per candidate for spreadsheet triage.
type CSVReporter struct {
	Output string
}

var _ ports.Reporter = (*CSVReporter)(nil)

var csvHeader = []string{
	"slug", "name", "author", "active_installs", "last_updated",
	"category", "changelog_signal", "abandoned", "trusted_author",
	"compatible", "dangerous_functions", "ajax_handlers",
	"archive_unreadable", "vps", "severity",
}

func (r *CSVReporter) Write(result domain.RunResult) error {
	out, err := openOutput(r.Output)
	if err != nil {
		return fmt.Errorf("open report output: %w", err)
	}

	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		_ = closeOutput(out)
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range result.Candidates {
		dangerous, ajax, unreadable := "", "", ""
		if c.Deep != nil {
			dangerous = strconv.Itoa(c.Deep.DangerousFunctions)
			ajax = strconv.Itoa(c.Deep.AjaxHandlers)
			unreadable = strconv.FormatBool(c.Deep.ArchiveUnreadable)
		}
		lastUpdated := ""
		if !c.Record.LastUpdated.IsZero() {
			lastUpdated = c.Record.LastUpdated.Format("2006-01-02")
		}
		row := []string{
			c.Record.Slug,
			c.Record.Name,
			c.Record.Author,
			strconv.Itoa(c.Record.ActiveInstalls),
			lastUpdated,
			string(c.Category),
			strconv.Itoa(c.ChangelogSignal),
			strconv.FormatBool(c.Abandoned),
			strconv.FormatBool(c.TrustedAuthor),
			strconv.FormatBool(c.Compatible),
			dangerous,
			ajax,
			unreadable,
			strconv.Itoa(c.VPS),
			string(c.Severity),
		}
		if err := w.Write(row); err != nil {
			_ = closeOutput(out)
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = closeOutput(out)
		return fmt.Errorf("flush csv: %w", err)
	}
	return closeOutput(out)
}
