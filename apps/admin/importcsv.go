package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/assignment"
)

var errImportFormat = errors.New("expected a .csv or .xlsx file")

// importAssignments imports the assignments of a .csv or .xlsx file on behalf of a parent.
func (cli *commandLine) importAssignments(parentEmail, path string) error {
	var read func(io.Reader) ([]assignment.ImportRow, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		read = assignment.ReadCSV
	case ".xlsx":
		read = assignment.ReadXLSX
	default:
		return errImportFormat
	}

	ctx := context.Background()
	parent, err := cli.svc.Users.GetByEmail(ctx, parentEmail)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening import file")
	}
	defer func() { _ = f.Close() }()

	rows, err := read(f)
	if err != nil {
		return err
	}
	created, err := cli.svc.Assignments.Import(ctx, parent.Actor(), rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d assignments imported\n", len(created))
	return nil
}
