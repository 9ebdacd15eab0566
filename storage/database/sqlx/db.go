// Package sqlxrepos implements the repositories on postgres with sqlx.
// Domain structs are scanned directly: field names map to snake_case columns.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
)

// postgres error codes
const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

// Prepare sets the column mapper used by every repository of this package.
func Prepare(db *sqlx.DB) *sqlx.DB {
	db.MapperFunc(snakeCase)
	return db
}

// snakeCase maps Go field names to columns: FamilyID -> family_id.
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func newID() string { return uuid.New().String() }

// validID avoids a postgres error on malformed ids; they cannot match any row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// trapNoRows maps "no rows" to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func pqCode(err error) string {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return string(pqErr.Code)
	}
	return ""
}

// withTx runs fn in a transaction, committed only when fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// orderBy renders cleaned orderings, or fallback when there is none.
func orderBy(orderings []core.DBOrdering, fallback string) string {
	if len(orderings) == 0 {
		return " ORDER BY " + fallback
	}
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		list = append(list, ord.String()+" NULLS LAST")
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

// where accumulates AND conditions with positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
