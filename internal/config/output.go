package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputFormatter handles output formatting for CLI commands
type OutputFormatter struct {
	format      types.OutputFormat
	quiet       bool
	verbose     bool
	traceID     string
	writer      io.Writer
	errorWriter io.Writer
	warnings    []types.CLIWarning
}

// OutputOptions configures the output formatter
type OutputOptions struct {
	Format  types.OutputFormat
	Quiet   bool
	Verbose bool
	// TraceID is echoed in the JSON envelope; a fresh one is generated when empty
	TraceID     string
	Writer      io.Writer
	ErrorWriter io.Writer
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(opts OutputOptions) *OutputFormatter {
	f := &OutputFormatter{
		format:      opts.Format,
		quiet:       opts.Quiet,
		verbose:     opts.Verbose,
		traceID:     opts.TraceID,
		writer:      opts.Writer,
		errorWriter: opts.ErrorWriter,
		warnings:    []types.CLIWarning{},
	}
	if f.traceID == "" {
		f.traceID = uuid.New().String()
	}
	if f.writer == nil {
		f.writer = os.Stdout
	}
	if f.errorWriter == nil {
		f.errorWriter = os.Stderr
	}
	return f
}

// TraceID returns the trace ID stamped on every envelope
func (f *OutputFormatter) TraceID() string {
	return f.traceID
}

// AddWarning adds a warning to be included in output
func (f *OutputFormatter) AddWarning(code, message, severity string) {
	f.warnings = append(f.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (f *OutputFormatter) WriteSuccess(command string, data interface{}) error {
	output := types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       f.traceID,
		Command:       command,
		Data:          data,
		Warnings:      f.warnings,
		Errors:        []types.CLIError{},
	}

	switch f.format {
	case types.OutputFormatJSON:
		return f.writeJSON(output)
	case types.OutputFormatTable:
		return f.writeTable(command, data)
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

// WriteError writes an error result. Errors are always JSON so scripts can
// parse them regardless of the selected format.
func (f *OutputFormatter) WriteError(command string, cliErr types.CLIError) error {
	output := types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       f.traceID,
		Command:       command,
		Data:          nil,
		Warnings:      f.warnings,
		Errors:        []types.CLIError{cliErr},
	}

	if f.format == types.OutputFormatTable {
		_, err := fmt.Fprintf(f.errorWriter, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		return err
	}
	if err := f.writeJSON(output); err != nil {
		return err
	}

	f.Verbose("Error occurred - Trace ID: %s", f.traceID)
	return nil
}

func (f *OutputFormatter) writeJSON(data interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *OutputFormatter) writeTable(command string, data interface{}) error {
	if len(f.warnings) > 0 && !f.quiet {
		for _, warning := range f.warnings {
			if _, err := fmt.Fprintf(f.errorWriter, "Warning [%s]: %s\n", warning.Code, warning.Message); err != nil {
				return err
			}
		}
	}

	if renderable, ok := data.(types.TableRenderable); ok {
		return f.renderTable(renderable.AsTableRenderer())
	}
	if renderer, ok := data.(types.TableRenderer); ok {
		return f.renderTable(renderer)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		return f.writeKeyValueTable(v)
	case map[string]string:
		converted := make(map[string]interface{}, len(v))
		for key, value := range v {
			converted[key] = value
		}
		return f.writeKeyValueTable(converted)
	default:
		return f.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       f.traceID,
			Command:       command,
			Data:          data,
			Warnings:      f.warnings,
			Errors:        []types.CLIError{},
		})
	}
}

func (f *OutputFormatter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !f.quiet {
			if _, err := fmt.Fprintln(f.writer, renderer.EmptyMessage()); err != nil {
				return err
			}
		}
		return nil
	}

	table := newTable(f.writer)
	table.SetHeader(renderer.Headers())
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return nil
}

// writeKeyValueTable writes a generic key-value table sorted by key
func (f *OutputFormatter) writeKeyValueTable(data map[string]interface{}) error {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	table := newTable(f.writer)
	table.SetHeader([]string{"Key", "Value"})
	for _, key := range keys {
		table.Append([]string{key, fmt.Sprintf("%v", data[key])})
	}
	table.Render()
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

// Log writes a message to stderr unless quiet mode is enabled
func (f *OutputFormatter) Log(format string, args ...interface{}) {
	if !f.quiet {
		if _, err := fmt.Fprintf(f.errorWriter, format+"\n", args...); err != nil {
			return
		}
	}
}

// Verbose writes a message to stderr only in verbose mode
func (f *OutputFormatter) Verbose(format string, args ...interface{}) {
	if f.verbose {
		if _, err := fmt.Fprintf(f.errorWriter, "[VERBOSE] "+format+"\n", args...); err != nil {
			return
		}
	}
}

// Truncate shortens s to maxLen runes with an ellipsis
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
