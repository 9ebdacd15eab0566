package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/homeschool/apps/shared"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrations need a postgres database (DATABASE_INMEMORY is set)")
	errMismatch   = errors.New("passwords do not match")
)

type commandLine struct {
	db       *sql.DB // nil in memory
	svc      shared.Services
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                   - run database migrations (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  addfamily -name FAMILY -parent NAME -email EMAIL         - register a family with its first parent")
	fmt.Fprintln(cli.out, "  adduser -family EMAIL -name NAME -email EMAIL -role ROLE - add a parent or student to the family of a parent")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                               - reset user's password")
	fmt.Fprintln(cli.out, "  importcsv -family EMAIL -file PATH                       - import assignments from a .csv or .xlsx file")
}

// promptPassword reads a password from the terminal, asking twice.
func (cli *commandLine) promptPassword() (string, string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", "", err
	}
	fmt.Fprint(cli.out, "Confirm password:")
	confirm, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", "", err
	}
	return string(pwd), string(confirm), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addFamilyCmd := flag.NewFlagSet("addfamily", flag.ContinueOnError)
	addFamilyName := addFamilyCmd.String("name", "", "The family name.")
	addFamilyParent := addFamilyCmd.String("parent", "", "The parent's name.")
	addFamilyEmail := addFamilyCmd.String("email", "", "The parent's email. The password will be prompted next.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserFamily := addUserCmd.String("family", "", "The email of a parent of the family.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", "STUDENT", "PARENT or STUDENT.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	importCmd := flag.NewFlagSet("importcsv", flag.ContinueOnError)
	importFamily := importCmd.String("family", "", "The email of the parent importing the assignments.")
	importFile := importCmd.String("file", "", "Path of a .csv or .xlsx file.")

	for _, fs := range []*flag.FlagSet{addFamilyCmd, addUserCmd, resetPasswordCmd, importCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addfamily":
		if err := addFamilyCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addFamilyName == "" || *addFamilyParent == "" || *addFamilyEmail == "" {
			addFamilyCmd.Usage()
			return errHelp
		}
		pwd, confirm, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addFamily(*addFamilyName, *addFamilyParent, *addFamilyEmail, pwd, confirm)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserFamily == "" || *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, confirm, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(*addUserFamily, *addUserName, *addUserEmail, *addUserRole, pwd, confirm)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, confirm, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		if pwd != confirm {
			return errMismatch
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "importcsv":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importFamily == "" || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importAssignments(*importFamily, *importFile)

	default:
		cli.printUsage()
		return errHelp
	}
}
