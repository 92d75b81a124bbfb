package errx

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// WrapSQL maps database errors to AppError. Missing rows become 404 and
// MySQL duplicate-key violations become 409.
func WrapSQL(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return New(err, http.StatusNotFound, NotFoundMessage)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return New(err, http.StatusConflict, ConflictMessage)
	}

	return New(err, http.StatusInternalServerError, DatabaseErrorMessage)
}
