package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/apps/shared"
	"github.com/trezcool/homeschool/core"
	emailsvc "github.com/trezcool/homeschool/services/email"
	logsvc "github.com/trezcool/homeschool/services/logger"
	"github.com/trezcool/homeschool/storage/database"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	if !conf.Database.InMemory {
		if err := database.CreateIfNotExist(conf); err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
	}
	repos, closeDB, err := shared.OpenRepos(conf, false /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	// admin commands never email users
	svc := shared.NewServices(conf, repos, emailsvc.NewConsoleService(conf, logger), logger)
	validate, translator := shared.NewValidator()

	cli := commandLine{
		svc:      svc,
		validate: validate,
		out:      os.Stdout,
	}
	if repos.DB != nil {
		cli.db = repos.DB.DB
	}

	code := 0
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", describeError(err, translator))
		}
		code = 1
	}
	if err = closeDB(); err != nil {
		logger.Error("Failed to close database", err)
	}
	os.Exit(code)
}

// describeError flattens validation errors into "field: message" lines.
func describeError(err error, translator ut.Translator) string {
	var fields map[string]string

	var verrs validator.ValidationErrors
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verrs):
		fields = core.TranslateValidationErrors(verrs, translator)
	case errors.As(err, &verr) && len(verr.Fields) > 0:
		fields = make(map[string]string, len(verr.Fields))
		for _, fe := range verr.Fields {
			fields[fe.Field] = fe.Error
		}
	default:
		return err.Error()
	}

	lines := make([]string, 0, len(fields))
	for field, msg := range fields {
		lines = append(lines, field+": "+msg)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
