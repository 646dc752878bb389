package common

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/printers"
)

// TablePrinter prints tables and pagination hints for one command.
type TablePrinter struct {
	IOStreams genericclioptions.IOStreams
	NoHeaders bool

	printer      printers.ResourcePrinter
	printedPages int
}

// NewTablePrinter creates a new table printer
func NewTablePrinter(ioStreams genericclioptions.IOStreams, noHeaders bool) *TablePrinter {
	return &TablePrinter{
		IOStreams: ioStreams,
		NoHeaders: noHeaders,
		printer:   CreateTablePrinter(noHeaders),
	}
}

// PrintTable prints a table to the output stream. Headers are printed only
// for the first table so pages fetched one after another read as one table.
func (p *TablePrinter) PrintTable(table *metav1.Table) error {
	printer := p.printer
	if p.printedPages > 0 && !p.NoHeaders {
		printer = CreateTablePrinter(true)
	}
	p.printedPages++
	return printer.PrintObj(table, p.IOStreams.Out)
}

// PrintPaginationInfo prints pagination information to stderr
func (p *TablePrinter) PrintPaginationInfo(continueToken string, resultCount int) {
	if continueToken != "" {
		_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "\nMore results available. Use --continue-after '%s' to get the next page.\n", continueToken)
		_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "Or use --all-pages to fetch all results automatically.\n")
	} else if resultCount > 0 {
		_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "\nNo more results.\n")
	}
}

// PrintAllPagesInfo prints info about fetched results
func (p *TablePrinter) PrintAllPagesInfo(totalCount int) {
	_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "\nShowing %d results.\n", totalCount)
}

// NewTable returns an empty meta.k8s.io Table with the given columns.
func NewTable(columns ...metav1.TableColumnDefinition) *metav1.Table {
	return &metav1.Table{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Table",
			APIVersion: "meta.k8s.io/v1",
		},
		ColumnDefinitions: columns,
		Rows:              []metav1.TableRow{},
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 4 {
		return s
	}
	return string(r[:n-3]) + "..."
}

// SupportsColor checks if the output stream supports ANSI color codes
func SupportsColor(out io.Writer) bool {
	// NO_COLOR is a universal opt-out.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	f, ok := out.(*os.File)
	if !ok || f != os.Stdout {
		return false
	}

	termEnv := os.Getenv("TERM")
	if termEnv == "dumb" || termEnv == "" {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}

// CreatePrinter creates a printer based on output format
func CreatePrinter(printFlags *genericclioptions.PrintFlags) (printers.ResourcePrinter, error) {
	return printFlags.ToPrinter()
}

// IsDefaultOutputFormat checks if using default (table) output
func IsDefaultOutputFormat(printFlags *genericclioptions.PrintFlags) bool {
	outputFormat := printFlags.OutputFormat
	return outputFormat == nil || *outputFormat == ""
}

// IsOutputFormat reports whether the -o flag is set to format.
func IsOutputFormat(printFlags *genericclioptions.PrintFlags, format string) bool {
	return printFlags.OutputFormat != nil && *printFlags.OutputFormat == format
}

// CreateTablePrinter creates a configured table printer for consistent table output
func CreateTablePrinter(noHeaders bool) printers.ResourcePrinter {
	return printers.NewTablePrinter(printers.PrintOptions{
		WithNamespace: false,
		Wide:          true,
		NoHeaders:     noHeaders,
	})
}
