package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeschool/apps/shared"
	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/user"
	"github.com/trezcool/homeschool/storage/database"
	"github.com/trezcool/homeschool/testutil"
)

type cliTest struct {
	name      string
	args      []string // without program name
	passwords []string // answers to the password prompts
	wantErr   error
	check     func(t *testing.T, err error)
}

type testCLI struct {
	*commandLine
	env *testutil.Env
	out *bytes.Buffer
}

func setup(t *testing.T) testCLI {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	return testCLI{
		commandLine: &commandLine{
			svc: shared.Services{
				Users:       env.Users,
				Students:    env.Students,
				Subjects:    env.Subjects,
				Goals:       env.Goals,
				Activity:    env.Activity,
				Assignments: env.Assignments,
				Reports:     env.Reports,
			},
			validate: env.Validate,
			out:      out,
		},
		env: env,
		out: out,
	}
}

func (cli testCLI) runAll(t *testing.T, tests []cliTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := tt.passwords
			readPasswordFunc = func(fd int) ([]byte, error) {
				if len(answers) == 0 {
					return nil, nil
				}
				pwd := answers[0]
				answers = answers[1:]
				return []byte(pwd), nil
			}

			err := cli.run(append([]string{"admin"}, tt.args...))
			switch {
			case tt.check != nil:
				tt.check(t, err)
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func isValidationErr(t *testing.T, err error) {
	var verr *core.ValidationError
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verr) || errors.As(err, &verrs), "got %T: %v", err, err)
}

func Test_commandLine_help(t *testing.T) {
	cli := setup(t)
	cli.runAll(t, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "bad flag", args: []string{"addfamily", "-lol"}, wantErr: errHelp},
	})
	assert.Contains(t, cli.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)
	cli.runAll(t, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "in memory", args: []string{"migrate", "up"}, wantErr: errNoDatabase},
	})

	var gotCommand string
	var gotArgs []string
	t.Cleanup(func() { migrateFunc = database.Migrate })
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		gotCommand, gotArgs = command, args
		return nil
	}
	cli.db = new(sql.DB) // never dialed, migrateFunc is mocked

	cli.runAll(t, []cliTest{{name: "up-to", args: []string{"migrate", "up-to", "2"}}})
	assert.Equal(t, "up-to", gotCommand)
	assert.Equal(t, []string{"2"}, gotArgs)

	cli.runAll(t, []cliTest{{name: "status", args: []string{"migrate", "status"}}})
	assert.Equal(t, "status", gotCommand)
	assert.Empty(t, gotArgs)
}

func Test_commandLine_addFamily(t *testing.T) {
	cli := setup(t)
	pwd := testutil.Password
	args := []string{"addfamily", "-name", "Roe", "-parent", "Rick Roe", "-email", "Rick@Roe.test"}

	cli.runAll(t, []cliTest{
		{name: "missing flags", args: []string{"addfamily", "-name", "Roe"}, wantErr: errHelp},
		{name: "passwords differ", args: args, passwords: []string{pwd, pwd + "x"}, check: isValidationErr},
		{name: "weak password", args: args, passwords: []string{"lol", "lol"}, check: isValidationErr},
		{name: "created", args: args, passwords: []string{pwd, pwd}},
		{name: "email taken", args: args, passwords: []string{pwd, pwd}, check: isValidationErr},
	})

	parent, err := cli.env.Users.GetByEmail(context.Background(), "rick@roe.test")
	require.NoError(t, err)
	assert.Equal(t, core.RoleParent, parent.Role)
	fam, err := cli.env.Users.GetFamily(context.Background(), parent.Actor())
	require.NoError(t, err)
	assert.Equal(t, "Roe", fam.Name)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	fam := testutil.CreateFamily(t, cli.env.Repos.Users, "Doe", "jane@doe.test")
	kid := testutil.CreateUser(t, cli.env.Repos.Users, fam.ID, "Ada", "ada@doe.test", core.RoleStudent, true)
	pwd := testutil.Password

	cli.runAll(t, []cliTest{
		{name: "missing flags", args: []string{"adduser", "-family", "jane@doe.test"}, wantErr: errHelp},
		{
			name:      "unknown family",
			args:      []string{"adduser", "-family", "nobody@doe.test", "-name", "Bob", "-email", "bob@doe.test"},
			passwords: []string{pwd, pwd},
			wantErr:   user.ErrNotFound,
		},
		{
			name:      "family of a student",
			args:      []string{"adduser", "-family", kid.Email, "-name", "Bob", "-email", "bob@doe.test"},
			passwords: []string{pwd, pwd},
			check: func(t *testing.T, err error) {
				assert.IsType(t, &core.PermissionError{}, err)
			},
		},
		{
			name:      "unknown role",
			args:      []string{"adduser", "-family", "jane@doe.test", "-name", "Bob", "-email", "bob@doe.test", "-role", "TUTOR"},
			passwords: []string{pwd, pwd},
			check:     isValidationErr,
		},
		{
			name:      "added",
			args:      []string{"adduser", "-family", "jane@doe.test", "-name", "Bob", "-email", "bob@doe.test"},
			passwords: []string{pwd, pwd},
		},
	})

	bob, err := cli.env.Users.GetByEmail(context.Background(), "bob@doe.test")
	require.NoError(t, err)
	assert.Equal(t, fam.ID, bob.FamilyID)
	assert.Equal(t, core.RoleStudent, bob.Role)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	fam := testutil.CreateFamily(t, cli.env.Repos.Users, "Doe", "jane@doe.test")
	newPwd := "N3w!Secret"

	cli.runAll(t, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "no password", args: []string{"resetpassword", "-email", fam.Parent.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@doe.test"}, passwords: []string{newPwd, newPwd}, wantErr: user.ErrNotFound},
		{name: "passwords differ", args: []string{"resetpassword", "-email", fam.Parent.Email}, passwords: []string{newPwd, "lol"}, wantErr: errMismatch},
		{name: "reset", args: []string{"resetpassword", "-email", " JANE@doe.test"}, passwords: []string{newPwd, newPwd}},
	})

	_, err := cli.env.Users.Authenticate(context.Background(), fam.Parent.Email, newPwd)
	assert.NoError(t, err)
}

func Test_commandLine_importAssignments(t *testing.T) {
	cli := setup(t)
	fam := testutil.CreateFamily(t, cli.env.Repos.Users, "Doe", "jane@doe.test")
	testutil.CreateStudent(t, cli.env.Repos.Students, fam.ID, "Ada", "")

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}
	good := write("week.csv", "Title,Student,Due Date\nFractions,Ada,2024-03-04\nSpelling,ada,\n")
	bad := write("bad.csv", "Title,Student\nMystery,Zed\n")
	txt := write("week.txt", "Title,Student\nFractions,Ada\n")

	cli.runAll(t, []cliTest{
		{name: "missing flags", args: []string{"importcsv", "-file", good}, wantErr: errHelp},
		{name: "bad extension", args: []string{"importcsv", "-family", "jane@doe.test", "-file", txt}, wantErr: errImportFormat},
		{
			name: "missing file",
			args: []string{"importcsv", "-family", "jane@doe.test", "-file", filepath.Join(dir, "nope.csv")},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
			},
		},
		{name: "invalid rows", args: []string{"importcsv", "-family", "jane@doe.test", "-file", bad}, check: isValidationErr},
		{name: "imported", args: []string{"importcsv", "-family", "jane@doe.test", "-file", good}},
	})

	assert.Equal(t, 2, cli.env.DB.Counts()["assignments"])
	assert.Contains(t, cli.out.String(), "2 assignments imported")
}

func Test_describeError(t *testing.T) {
	cli := setup(t)
	_, translator := testutil.NewValidatorAndTranslator()

	nf := user.NewFamily{FamilyName: "Roe", ParentName: "Rick", Email: "not-an-email", Password: "x", PasswordConfirm: "x"}
	err := nf.Validate(cli.validate, cli.svc.Users)
	require.Error(t, err)
	assert.Contains(t, describeError(err, translator), "email: ")

	err = core.NewValidationError(nil,
		core.FieldError{Field: "row 3", Error: "title is required"},
		core.FieldError{Field: "row 2", Error: `unknown student "Zed"`},
	)
	assert.Equal(t, "row 2: unknown student \"Zed\"\nrow 3: title is required", describeError(err, translator))
	assert.Equal(t, "passwords do not match", describeError(errMismatch, translator))
}
