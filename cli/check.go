package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/georgepadayatti/pdfflatten/flatten"
	"github.com/georgepadayatti/pdfflatten/pdf/form"
	"github.com/georgepadayatti/pdfflatten/pdf/metadata"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
)

// CheckOptions contains options for the check command.
type CheckOptions struct {
	JSON bool
}

// CheckCommand implements the 'check' command.
func CheckCommand(args []string) {
	checkFlags := flag.NewFlagSet("check", flag.ExitOnError)

	var opts CheckOptions

	checkFlags.BoolVar(&opts.JSON, "json", false, "Output results in JSON format")

	checkFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s check [options] <input.pdf>\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Validate a PDF file and show its document information.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		checkFlags.SetOutput(stdout)
		checkFlags.PrintDefaults()
	}

	if err := checkFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	if len(checkFlags.Args()) < 1 {
		checkFlags.Usage()
		osExit(1)
		return
	}

	output, err := checkPDF(checkFlags.Arg(0))
	if err != nil {
		fail(err)
		return
	}

	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(output)
	} else {
		outputCheckText(output)
	}

	if !output.Valid {
		osExit(1)
	}
}

// CheckOutput is the result of checking a document.
type CheckOutput struct {
	Valid           bool              `json:"valid"`
	Error           string            `json:"error,omitempty"`
	Pages           int               `json:"pages"`
	NeedAppearances bool              `json:"need_appearances"`
	Signed          bool              `json:"signed"`
	FormFields      []string          `json:"form_fields,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Document        *DocumentInfoJSON `json:"document,omitempty"`
}

// DocumentInfoJSON contains PDF document metadata for JSON output.
type DocumentInfoJSON struct {
	Title        string   `json:"title,omitempty"`
	Author       string   `json:"author,omitempty"`
	Subject      string   `json:"subject,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Creator      string   `json:"creator,omitempty"`
	Producer     string   `json:"producer,omitempty"`
	CreationDate string   `json:"creation_date,omitempty"`
	ModDate      string   `json:"mod_date,omitempty"`
}

// checkPDF validates the file with pdfcpu and reads its information
// dictionary. Only an unreadable file is an error; an invalid document is
// reported in the output.
func checkPDF(inputPath string) (*CheckOutput, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	output := &CheckOutput{Valid: true}
	if err := flatten.Verify(data, -1); err != nil {
		output.Valid = false
		output.Error = err.Error()
		return output, nil
	}
	if output.Pages, err = flatten.PageCount(data); err != nil {
		output.Valid = false
		output.Error = err.Error()
		return output, nil
	}

	r, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		output.Valid = false
		output.Error = err.Error()
		return output, nil
	}
	if acro, err := form.Read(r, r.AcroForm); err == nil {
		output.NeedAppearances = acro.NeedAppearances
		output.Signed = acro.HasSignatures()
		for _, f := range acro.Fields {
			output.FormFields = append(output.FormFields, f.FullName)
		}
	} else if !errors.Is(err, form.ErrNoAcroForm) {
		output.Warnings = append(output.Warnings, err.Error())
	}

	m := metadata.FromInfoDict(r.Info)
	doc := &DocumentInfoJSON{
		Title:    m.Title,
		Author:   m.Author,
		Subject:  m.Subject,
		Keywords: m.Keywords,
		Creator:  m.Creator,
		Producer: m.Producer,
	}
	if m.Created != nil {
		doc.CreationDate = m.Created.Format(time.RFC3339)
	}
	if m.LastModified != nil {
		doc.ModDate = m.LastModified.Format(time.RFC3339)
	}
	output.Document = doc
	return output, nil
}

func outputCheckText(output *CheckOutput) {
	if !output.Valid {
		fmt.Fprintf(stdout, "INVALID: %s\n", output.Error)
		return
	}
	fmt.Fprintln(stdout, "VALID")
	fmt.Fprintf(stdout, "Pages: %d\n", output.Pages)
	if len(output.FormFields) > 0 {
		fmt.Fprintf(stdout, "Form fields: %s\n", strings.Join(output.FormFields, ", "))
	}
	if output.NeedAppearances {
		fmt.Fprintln(stdout, "NeedAppearances: true")
	}
	if output.Signed {
		fmt.Fprintln(stdout, "Signed: true")
	}
	for _, w := range output.Warnings {
		fmt.Fprintf(stdout, "Warning: %s\n", w)
	}
	doc := output.Document
	if doc == nil {
		return
	}
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(stdout, "%s: %s\n", label, value)
		}
	}
	field("Title", doc.Title)
	field("Author", doc.Author)
	field("Subject", doc.Subject)
	field("Keywords", strings.Join(doc.Keywords, ", "))
	field("Creator", doc.Creator)
	field("Producer", doc.Producer)
	field("Created", doc.CreationDate)
	field("Modified", doc.ModDate)
}
