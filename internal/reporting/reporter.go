// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/faultline-sec/faultline/internal/taint"
)

// Reporter writes the collections of one discovery run to an output.
type Reporter interface {
	// Write renders a single run's results.
	Write(results *taint.Results) error
	// Close finalizes the report and releases any underlying resources.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error { return nil }

// New creates a reporter for the given format and output path. An empty or
// "stdout" path writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json":
		return NewJSONReporter(writer, toolVersion), nil
	default:
		writer.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Summary aggregates per-category and per-risk counts for the envelope head.
type Summary struct {
	Sources       int            `json:"sources"`
	Sinks         int            `json:"sinks"`
	Sanitizers    int            `json:"sanitizers"`
	Flows         int            `json:"flows"`
	CriticalCount int            `json:"critical_count"`
	HighCount     int            `json:"high_count"`
	ByCategory    map[string]int `json:"by_category"`
}

// Envelope is the on-disk shape of a run report.
type Envelope struct {
	Tool            string         `json:"tool"`
	Version         string         `json:"version"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Summary         Summary        `json:"summary"`
	Vulnerabilities map[string]int `json:"vulnerability_classes,omitempty"`
	Results         *taint.Results `json:"results"`
}

// JSONReporter renders the result envelope as indented JSON.
type JSONReporter struct {
	writer      io.WriteCloser
	toolVersion string
}

// NewJSONReporter takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{writer: writer, toolVersion: toolVersion}
}

// Write renders one run's results and summary counts.
func (r *JSONReporter) Write(results *taint.Results) error {
	envelope := buildEnvelope(results, r.toolVersion)
	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if _, err := r.writer.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (r *JSONReporter) Close() error {
	return r.writer.Close()
}

func buildEnvelope(results *taint.Results, toolVersion string) Envelope {
	summary := Summary{
		Sources:    len(results.Sources),
		Sinks:      len(results.Sinks),
		Sanitizers: len(results.Sanitizers),
		Flows:      len(results.Flows),
		ByCategory: make(map[string]int),
	}
	vulnerabilities := make(map[string]int)

	for _, source := range results.Sources {
		summary.ByCategory[string(source.Category)]++
		countRisk(&summary, source.Risk)
	}
	for _, sink := range results.Sinks {
		summary.ByCategory[string(sink.Category)]++
		countRisk(&summary, sink.Risk)
		if label := sink.Category.Vulnerability(); label != "" {
			vulnerabilities[label]++
		}
	}
	for _, sanitizer := range results.Sanitizers {
		summary.ByCategory[string(sanitizer.Category)]++
	}

	return Envelope{
		Tool:            "faultline",
		Version:         toolVersion,
		GeneratedAt:     time.Now().UTC(),
		Summary:         summary,
		Vulnerabilities: vulnerabilities,
		Results:         results,
	}
}

func countRisk(summary *Summary, risk taint.Risk) {
	switch risk {
	case taint.RiskCritical:
		summary.CriticalCount++
	case taint.RiskHigh:
		summary.HighCount++
	}
}
