package omi

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultFallbackRadiusM is the hard cutoff for the nearest-zone fallback.
// Points farther than this from every zone boundary are "not found" rather
// than weak matches, so an address is never silently assigned to a
// neighborhood it is not in.
const DefaultFallbackRadiusM = 200.0

// FindZone resolves a geographic point to the zone containing it for the
// given semester. If no polygon contains the point, it falls back to the
// nearest zone whose boundary lies within the configured radius (geodesic
// meters) and annotates the match with that distance. Returns (nil, nil)
// when the point resolves to no zone at all.
func (s *Store) FindZone(ctx context.Context, lat, lng float64, semester string) (*ZoneMatch, error) {
	// Exact match: point inside polygon. Zones of one semester are assumed
	// non-overlapping; LIMIT 2 lets us detect and log upstream data
	// corruption without a second round-trip.
	rows, err := s.pool.Query(ctx, `
		SELECT z.link_zona, z.zone_code, z.fascia, z.municipality_name, z.zone_description
		FROM omi.zones z
		WHERE ST_Contains(z.geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		  AND z.semester = $3
		LIMIT 2`,
		lng, lat, semester,
	)
	if err != nil {
		return nil, eris.Wrap(err, "omi: zone containment query")
	}

	matches, err := scanZoneMatches(rows, semester)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		if len(matches) > 1 {
			zap.L().Warn("omi: overlapping zones for point",
				zap.Float64("lat", lat),
				zap.Float64("lng", lng),
				zap.String("semester", semester),
				zap.String("returned", matches[0].LinkZona),
			)
		}
		return &matches[0], nil
	}

	// Fallback: nearest zone boundary within the radius, geodesic distance.
	var m ZoneMatch
	var dist float64
	err = s.pool.QueryRow(ctx, `
		SELECT z.link_zona, z.zone_code, z.fascia, z.municipality_name, z.zone_description,
		       ST_Distance(z.geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS dist_m
		FROM omi.zones z
		WHERE z.semester = $3
		  AND ST_DWithin(z.geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $4)
		ORDER BY dist_m
		LIMIT 1`,
		lng, lat, semester, s.fallbackRadiusM,
	).Scan(&m.LinkZona, &m.ZoneCode, &m.Fascia, &m.MunicipalityName, &m.Description, &dist)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "omi: zone fallback query")
	}

	zap.L().Info("omi: no exact zone match, using nearest",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("link_zona", m.LinkZona),
		zap.Float64("dist_m", dist),
	)
	m.Semester = semester
	m.DistanceM = &dist
	return &m, nil
}

// SemesterHasZones reports whether any zone rows exist for the semester.
// Lets callers distinguish "no data for this semester" from "no zone at
// this location."
func (s *Store) SemesterHasZones(ctx context.Context, semester string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM omi.zones WHERE semester = $1)`, semester,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "omi: semester existence query")
	}
	return exists, nil
}

// LatestSemester returns the most recent semester present in storage, or
// "" when the zones table is empty.
func (s *Store) LatestSemester(ctx context.Context) (string, error) {
	var semester string
	err := s.pool.QueryRow(ctx,
		`SELECT DISTINCT semester FROM omi.zones ORDER BY semester DESC LIMIT 1`,
	).Scan(&semester)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrap(err, "omi: latest semester query")
	}
	return semester, nil
}

// ListSemesters returns all semesters present in storage, most recent
// first.
func (s *Store) ListSemesters(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT semester FROM omi.zones ORDER BY semester DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "omi: list semesters query")
	}
	defer rows.Close()

	var semesters []string
	for rows.Next() {
		var sem string
		if err := rows.Scan(&sem); err != nil {
			return nil, eris.Wrap(err, "omi: scan semester row")
		}
		semesters = append(semesters, sem)
	}
	return semesters, rows.Err()
}

func scanZoneMatches(rows pgx.Rows, semester string) ([]ZoneMatch, error) {
	defer rows.Close()

	var matches []ZoneMatch
	for rows.Next() {
		var m ZoneMatch
		if err := rows.Scan(&m.LinkZona, &m.ZoneCode, &m.Fascia, &m.MunicipalityName, &m.Description); err != nil {
			return nil, eris.Wrap(err, "omi: scan zone match row")
		}
		m.Semester = semester
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
