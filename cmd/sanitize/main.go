package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/wudi/pdfsanitize/sanitize"
)

type options struct {
	inPath, outPath string
	reportPath      string
	opts            sanitize.Options
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sanitize: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "sanitize: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var o options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: go run ./cmd/sanitize [flags] <input.pdf> <output.pdf>\n")
		flag.PrintDefaults()
	}
	removeLinks := flag.Bool("links", true, "Strip external hyperlinks, link-family actions, embedded URLs and UNC paths")
	removeForms := flag.Bool("forms", true, "Strip AcroForm/XFA, widget annotations and XFA submit tags")
	removeJS := flag.Bool("js", true, "Strip OpenAction/JS, the Names/JavaScript tree and JavaScript actions")
	reportPath := flag.String("report", "", "Write the removal report as JSON to this path (default: stderr)")
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		return options{}, fmt.Errorf("missing input/output pdf paths")
	}
	o.inPath = flag.Arg(0)
	o.outPath = flag.Arg(1)
	o.reportPath = *reportPath
	o.opts = sanitize.Options{RemoveLinks: *removeLinks, RemoveForms: *removeForms, RemoveJavascript: *removeJS}
	return o, nil
}

func run(o options) error {
	if err := o.opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	data, err := os.ReadFile(o.inPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	out, report := sanitize.Sanitize(data, o.opts)

	if err := os.WriteFile(o.outPath, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return emitReport(o.reportPath, report)
}

func emitReport(path string, report sanitize.Report) error {
	payload, err := json.MarshalIndent(struct {
		Items   []string `json:"items"`
		Warning string   `json:"warning,omitempty"`
	}{Items: report.Items, Warning: report.Warning}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	payload = append(payload, '\n')

	if path == "" {
		_, err := os.Stderr.Write(payload)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
