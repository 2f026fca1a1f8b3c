package importer

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/omi"
)

// shapePolygonRings splits a shapefile polygon into rings following its
// part index table.
func shapePolygonRings(p *shp.Polygon) [][]geom.Coord {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	rings := make([][]geom.Coord, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}
		if len(ring) < 3 {
			continue
		}
		rings = append(rings, ring)
	}
	return rings
}

// ReadShapefileZones reads zone perimeters from a shapefile, the
// alternative distribution format for the same data as the KML bundles.
// Attribute lookup prefers a LINKZONA field; without one, CODCOM and
// CODZONA are resolved through the ZONE dataset lookup.
func ReadShapefileZones(path, semester string, lookup map[ZoneKey]ZoneInfo) ([]ZoneRecord, error) {
	if !omi.ValidSemester(semester) {
		return nil, eris.Errorf("importer: invalid semester %q", semester)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open shapefile %s", path)
	}
	defer reader.Close() //nolint:errcheck

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToUpper(strings.TrimRight(string(f.Name[:]), "\x00"))] = i
	}
	attr := func(n int, name string) string {
		i, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(reader.ReadAttribute(n, i))
	}

	var (
		records []ZoneRecord
		skipped int
	)
	for n := 0; reader.Next(); n++ {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}

		var info ZoneInfo
		if linkZona := attr(n, "LINKZONA"); linkZonaRe.MatchString(linkZona) {
			info = ZoneInfo{
				LinkZona:         linkZona,
				ZoneCode:         attr(n, "CODZONA"),
				MunicipalityName: attr(n, "COMUNE"),
				ProvinceCode:     attr(n, "PROV"),
			}
			if fromCSV, ok := lookup[ZoneKey{Belfiore: attr(n, "CODCOM"), ZoneCode: info.ZoneCode}]; ok {
				info = fromCSV
			}
		} else {
			var ok bool
			info, ok = lookup[ZoneKey{Belfiore: attr(n, "CODCOM"), ZoneCode: attr(n, "CODZONA")}]
			if !ok || !linkZonaRe.MatchString(info.LinkZona) {
				skipped++
				continue
			}
		}

		ewkbGeom, err := encodeMultiPolygon(shapePolygonRings(poly))
		if err != nil {
			return nil, err
		}
		if ewkbGeom == nil {
			skipped++
			continue
		}

		records = append(records, ZoneRecord{
			Zone: omi.Zone{
				LinkZona:          info.LinkZona,
				ZoneCode:          info.ZoneCode,
				Fascia:            info.Fascia,
				MunicipalityISTAT: info.MunicipalityISTAT,
				MunicipalityName:  info.MunicipalityName,
				ProvinceCode:      info.ProvinceCode,
				Description:       info.Description,
				Semester:          semester,
			},
			Geom: ewkbGeom,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "importer: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Warn("skipped shapefile records",
			zap.String("component", "importer"),
			zap.String("path", path),
			zap.Int("count", skipped))
	}
	return records, nil
}
