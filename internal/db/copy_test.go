package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"AG00000001", "2024_S2"},
		{"AG00000002", "2024_S2"},
	}

	mock.ExpectCopyFrom(pgx.Identifier{"omi", "zones"}, []string{"link_zona", "semester"}).
		WillReturnResult(2)

	n, err := CopyFromSchema(context.Background(), mock, "omi", "zones", []string{"link_zona", "semester"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFromSchema(context.Background(), mock, "omi", "zones", []string{"link_zona"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
