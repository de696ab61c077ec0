package display

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gym-snapshot/internal/snapshot"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --format value
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", value)
	}
}

// Printer writes command results for humans or machines
type Printer struct {
	out    io.Writer
	format OutputFormat
	colors ColorSystem
	style  TableStyle
}

// NewPrinter creates a printer; colors are detected on out.
func NewPrinter(out io.Writer, format OutputFormat, theme ColorTheme) *Printer {
	return &Printer{
		out:    out,
		format: format,
		colors: NewColorSystemFor(out, theme),
		style:  DefaultTableStyle,
	}
}

// SetTableStyle changes the style of rendered tables
func (p *Printer) SetTableStyle(style TableStyle) {
	p.style = style
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	p.message(p.colors.Theme().Success, "✓", format, args...)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	p.message(p.colors.Theme().Warning, "!", format, args...)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...interface{}) {
	p.message(p.colors.Theme().Error, "✗", format, args...)
}

// Info prints an informational message
func (p *Printer) Info(format string, args ...interface{}) {
	p.message(p.colors.Theme().Info, "i", format, args...)
}

func (p *Printer) message(clr Color, icon, format string, args ...interface{}) {
	// Structured output stays parseable.
	if p.format != FormatTable {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.colors.Colorize(icon, clr), fmt.Sprintf(format, args...))
}

// Structured writes v as JSON or YAML. It reports false for table output.
func (p *Printer) Structured(v interface{}) (bool, error) {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.out)
		defer enc.Close()
		enc.SetIndent(2)
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

func (p *Printer) table() *Table {
	t := NewTable(p.colors)
	t.SetStyle(p.style)
	return t
}

// SnapshotList prints the stored snapshots, newest first
func (p *Printer) SnapshotList(infos []snapshot.SnapshotInfo) error {
	if infos == nil {
		infos = []snapshot.SnapshotInfo{}
	}
	if ok, err := p.Structured(infos); ok {
		return err
	}

	if len(infos) == 0 {
		p.Info("No snapshots found")
		return nil
	}

	t := p.table()
	t.SetHeaders("NAME", "TIPO", "SIZE", "COMPRESSION", "MODIFIED")
	t.SetColumnAlignment(2, AlignRight)
	for _, info := range infos {
		scope := string(info.Scope)
		if scope == "" {
			scope = "-"
		}
		t.AddRow(info.Name, scope, FormatBytes(info.SizeBytes), string(info.Compression),
			info.ModifiedAt.Local().Format("2006-01-02 15:04:05"))
	}
	t.RenderTo(p.out)
	fmt.Fprintf(p.out, "%d snapshot(s)\n", len(infos))
	return nil
}

// SaveResult prints the name and per-set counts of a new snapshot
func (p *Printer) SaveResult(result *snapshot.SaveResult) error {
	if ok, err := p.Structured(result); ok {
		return err
	}

	p.Success("Snapshot %s created", result.Name)
	p.counts("RECORDS", toInt64(result.Summary))
	return nil
}

// RestoreResult prints the wiped and restored counts in recreate order
func (p *Printer) RestoreResult(result *snapshot.RestoreResult) error {
	if ok, err := p.Structured(result); ok {
		return err
	}

	p.Success("Restore finished in %s (wipe scope %s)", result.Duration.Round(time.Millisecond), result.WipeScope)

	t := p.table()
	t.SetHeaders("ENTITY SET", "WIPED", "RESTORED")
	t.SetColumnAlignment(1, AlignRight)
	t.SetColumnAlignment(2, AlignRight)
	for _, name := range result.RecreateOrder {
		restored := "-"
		if n, ok := result.Restored[name]; ok {
			restored = strconv.FormatInt(n, 10)
		}
		t.AddRow(name, strconv.FormatInt(result.Wiped[name], 10), restored)
	}
	t.AddRow("total", strconv.FormatInt(result.TotalWiped(), 10), strconv.FormatInt(result.TotalRestored(), 10))
	t.RenderTo(p.out)
	return nil
}

// Order prints the entity sets with their position and dependencies
func (p *Printer) Order(order []string, dependsOn map[string][]string) error {
	type entry struct {
		Position  int      `json:"position" yaml:"position"`
		Name      string   `json:"name" yaml:"name"`
		DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	}
	entries := make([]entry, 0, len(order))
	for i, name := range order {
		entries = append(entries, entry{Position: i + 1, Name: name, DependsOn: dependsOn[name]})
	}
	if ok, err := p.Structured(entries); ok {
		return err
	}

	t := p.table()
	t.SetHeaders("#", "ENTITY SET", "DEPENDS ON")
	t.SetColumnAlignment(0, AlignRight)
	for _, e := range entries {
		t.AddRow(strconv.Itoa(e.Position), e.Name, strings.Join(e.DependsOn, ", "))
	}
	t.RenderTo(p.out)
	return nil
}

// counts renders a name/count table sorted by name
func (p *Printer) counts(header string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	order := make([]string, 0, len(counts))
	for name := range counts {
		order = append(order, name)
	}
	sort.Strings(order)

	t := p.table()
	t.SetHeaders("ENTITY SET", header)
	t.SetColumnAlignment(1, AlignRight)
	for _, name := range order {
		t.AddRow(name, strconv.FormatInt(counts[name], 10))
	}
	t.RenderTo(p.out)
}

func toInt64(in map[string]int) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = int64(v)
	}
	return out
}

// FormatBytes renders a size with binary units
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
