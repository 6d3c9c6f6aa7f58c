package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBOptionsDSN(t *testing.T) {
	opts := DBOptions{Driver: "mysql", User: "game", Password: "secret", Host: "db", Port: "3306", Name: "turns"}
	dsn, err := opts.DSN()
	require.NoError(t, err)
	assert.Equal(t, "game:secret@tcp(db:3306)/turns?charset=utf8mb4&parseTime=True&loc=UTC", dsn)

	opts.Driver = "postgres"
	opts.Port = "5432"
	dsn, err = opts.DSN()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=game password=secret dbname=turns sslmode=disable TimeZone=UTC", dsn)
}

func TestDBOptionsDSNErrors(t *testing.T) {
	_, err := DBOptions{Driver: "mysql"}.DSN()
	assert.Error(t, err)

	_, err = DBOptions{Driver: "sqlite", User: "game"}.DSN()
	assert.ErrorContains(t, err, "unsupported")
}
