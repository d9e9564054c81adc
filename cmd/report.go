package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/acled-ingest/internal/ingest"
	"github.com/sells-group/acled-ingest/internal/store"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return eris.Errorf("unknown format %q (want text, json, or yaml)", f)
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return validFormat(format)
}

// writeReport prints a scan report in the requested format.
func writeReport(w io.Writer, format string, rep *ingest.RunReport) error {
	if format != formatText {
		return encode(w, format, rep)
	}

	if len(rep.Files) == 0 {
		fmt.Fprintln(w, "No files to process.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tREAD\tEXCLUDED\tUPSERTED\tSKIPPED\tERRORED\tRESULT")
	for _, f := range rep.Files {
		if f.Summary == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\tfailed: %s\n", f.Path, f.Error)
			continue
		}
		s := f.Summary
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.File, s.RowsRead, s.ExcludedRows, s.Upserted, s.Skipped, s.Errored, fileResult(f))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range rep.Files {
		if f.Summary == nil {
			continue
		}
		if ex := formatExcluded(f.Summary.Excluded); ex != "" {
			fmt.Fprintf(w, "%s excluded: %s\n", f.Summary.File, ex)
		}
		for _, a := range f.Summary.Anomalies {
			fmt.Fprintf(w, "%s anomaly: %s\n", f.Summary.File, a)
		}
		for _, e := range f.Summary.Errors {
			fmt.Fprintf(w, "%s error: %s: %s\n", f.Summary.File, e.ExternalID, e.Message)
		}
	}
	return nil
}

func fileResult(f ingest.FileResult) string {
	switch {
	case f.Error != "":
		return "failed: " + f.Error
	case f.Summary.DryRun:
		return "dry run"
	case f.Archived != "":
		return "archived"
	default:
		return "ok"
	}
}

// formatExcluded renders exclusion counts as "reason=n" pairs sorted by reason.
func formatExcluded(m map[string]int) string {
	reasons := make([]string, 0, len(m))
	for r, n := range m {
		if n > 0 {
			reasons = append(reasons, r)
		}
	}
	sort.Strings(reasons)
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", r, m[r])
	}
	return strings.Join(parts, ", ")
}

// writeRuns prints ingest run history in the requested format.
func writeRuns(w io.Writer, format string, runs []store.Run) error {
	if format != formatText {
		if runs == nil {
			runs = []store.Run{}
		}
		return encode(w, format, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tSTARTED\tREAD\tUPSERTED\tSKIPPED\tERRORED")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			id, r.FileName, r.Status, r.StartedAt.Format("2006-01-02 15:04"),
			r.RowsRead, r.RowsUpserted, r.RowsSkipped, r.RowsErrored)
	}
	return tw.Flush()
}
