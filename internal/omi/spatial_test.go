package omi

import (
	"context"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLat = 45.4642
	testLng = 9.1900
)

func zoneColumns() []string {
	return []string{"link_zona", "zone_code", "fascia", "municipality_name", "zone_description"}
}

// ---------------------------------------------------------------------------
// FindZone
// ---------------------------------------------------------------------------

func TestFindZone_ExactContainment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT z\.link_zona.+ST_Contains`).
		WithArgs(testLng, testLat, "2024_S2").
		WillReturnRows(pgxmock.NewRows(zoneColumns()).
			AddRow("MI00000123", "B15", "B", "MILANO", "Centro storico"))

	store := NewStore(mock)
	match, err := store.FindZone(context.Background(), testLat, testLng, "2024_S2")
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "MI00000123", match.LinkZona)
	assert.Equal(t, "B15", match.ZoneCode)
	assert.Equal(t, "2024_S2", match.Semester)
	assert.Nil(t, match.DistanceM, "exact containment carries no distance annotation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindZone_OverlappingZonesReturnsFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ST_Contains`).
		WithArgs(testLng, testLat, "2024_S2").
		WillReturnRows(pgxmock.NewRows(zoneColumns()).
			AddRow("MI00000123", "B15", "B", "MILANO", "Centro storico").
			AddRow("MI00000456", "B16", "B", "MILANO", "Brera"))

	store := NewStore(mock)
	match, err := store.FindZone(context.Background(), testLat, testLng, "2024_S2")
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "MI00000123", match.LinkZona)
	assert.Nil(t, match.DistanceM)
}

func TestFindZone_FallbackWithinRadius(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ST_Contains`).
		WithArgs(testLng, testLat, "2024_S2").
		WillReturnRows(pgxmock.NewRows(zoneColumns()))

	mock.ExpectQuery(`ST_DWithin`).
		WithArgs(testLng, testLat, "2024_S2", 200.0).
		WillReturnRows(pgxmock.NewRows(append(zoneColumns(), "dist_m")).
			AddRow("MI00000456", "C2", "C", "MILANO", "Periferia nord", 145.3))

	store := NewStore(mock)
	match, err := store.FindZone(context.Background(), testLat, testLng, "2024_S2")
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "MI00000456", match.LinkZona)
	require.NotNil(t, match.DistanceM)
	assert.InDelta(t, 145.3, *match.DistanceM, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindZone_BeyondRadiusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ST_Contains`).
		WithArgs(testLng, testLat, "2024_S2").
		WillReturnRows(pgxmock.NewRows(zoneColumns()))

	// The SQL cutoff excludes zones beyond the radius entirely, so the
	// fallback simply returns no rows.
	mock.ExpectQuery(`ST_DWithin`).
		WithArgs(testLng, testLat, "2024_S2", 200.0).
		WillReturnRows(pgxmock.NewRows(append(zoneColumns(), "dist_m")))

	store := NewStore(mock)
	match, err := store.FindZone(context.Background(), testLat, testLng, "2024_S2")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindZone_CustomRadius(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ST_Contains`).
		WithArgs(testLng, testLat, "2024_S2").
		WillReturnRows(pgxmock.NewRows(zoneColumns()))

	mock.ExpectQuery(`ST_DWithin`).
		WithArgs(testLng, testLat, "2024_S2", 500.0).
		WillReturnRows(pgxmock.NewRows(append(zoneColumns(), "dist_m")).
			AddRow("MI00000789", "D1", "D", "MILANO", "Estrema periferia", 420.0))

	store := NewStore(mock, WithFallbackRadius(500))
	match, err := store.FindZone(context.Background(), testLat, testLng, "2024_S2")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.InDelta(t, 420.0, *match.DistanceM, 0.001)
}

func TestFindZone_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ST_Contains`).
		WithArgs(testLng, testLat, "2024_S2").
		WillReturnError(fmt.Errorf("connection refused"))

	store := NewStore(mock)
	_, err = store.FindZone(context.Background(), testLat, testLng, "2024_S2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zone containment query")
}

// ---------------------------------------------------------------------------
// Semester resolution
// ---------------------------------------------------------------------------

func TestSemesterHasZones(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("2024_S2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewStore(mock)
	ok, err := store.SemesterHasZones(context.Background(), "2024_S2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLatestSemester(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT DISTINCT semester FROM omi\.zones ORDER BY semester DESC LIMIT 1`).
		WillReturnRows(pgxmock.NewRows([]string{"semester"}).AddRow("2024_S2"))

	store := NewStore(mock)
	sem, err := store.LatestSemester(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024_S2", sem)
}

func TestLatestSemester_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT DISTINCT semester`).
		WillReturnRows(pgxmock.NewRows([]string{"semester"}))

	store := NewStore(mock)
	sem, err := store.LatestSemester(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sem)
}

func TestListSemesters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT DISTINCT semester FROM omi\.zones ORDER BY semester DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"semester"}).
			AddRow("2024_S2").AddRow("2024_S1").AddRow("2023_S2"))

	store := NewStore(mock)
	semesters, err := store.ListSemesters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024_S2", "2024_S1", "2023_S2"}, semesters)
}
