package errx

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("load: %w", New(base, http.StatusTeapot, "short and stout"))

	assert.ErrorIs(t, err, base)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusTeapot, appErr.Status)
	assert.Equal(t, "short and stout: boom", appErr.Error())
}

func TestStatusOf(t *testing.T) {
	status, msg := StatusOf(Unauthorized("invalid or expired token"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid or expired token", msg)

	status, msg = StatusOf(errors.New("leaky detail"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, SystemErrorMessage, msg)
}

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	status, _ := StatusOf(WrapRedis(redis.Nil))
	assert.Equal(t, http.StatusNotFound, status)

	status, msg := StatusOf(WrapRedis(errors.New("connection refused")))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, RedisErrorMessage, msg)
}

func TestWrapSQL(t *testing.T) {
	assert.NoError(t, WrapSQL(nil))

	status, _ := StatusOf(WrapSQL(sql.ErrNoRows))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = StatusOf(WrapSQL(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.Equal(t, http.StatusConflict, status)

	status, msg := StatusOf(WrapSQL(errors.New("driver: bad connection")))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, DatabaseErrorMessage, msg)
}
