package importer

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/omi"
)

// ZoneRecord is one importable zone: metadata plus the perimeter as EWKB
// with SRID 4326, ready for the geometry column.
type ZoneRecord struct {
	Zone omi.Zone
	Geom []byte
}

// kmlSemesterRe matches the Document name header, e.g.
// "AGRIGENTO (AG) Anno/Semestre 2025/1 generato il ...".
var kmlSemesterRe = regexp.MustCompile(`Anno/Semestre\s+(\d{4})/([12])`)

// SemesterFromKML extracts the semester from a KML Document name header.
// Only the start of the file is inspected. Returns "" when absent.
func SemesterFromKML(data []byte) string {
	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}
	m := kmlSemesterRe.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return string(m[1]) + "_S" + string(m[2])
}

// placemark is one KML Placemark: its ExtendedData values and the raw
// text of every coordinates element at any nesting depth.
type placemark struct {
	data   map[string]string
	coords []string
}

// parsePlacemarks walks the KML token stream. Placemarks may sit inside
// Folder elements and polygons inside MultiGeometry, so a fixed struct
// mapping does not work; the walk collects coordinates wherever they
// appear under a Placemark.
func parsePlacemarks(data []byte) ([]placemark, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		pms      []placemark
		cur      *placemark
		dataName string
		inValue  bool
		inCoords bool
		buf      strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: parse kml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Placemark":
				cur = &placemark{data: make(map[string]string)}
			case "Data":
				if cur != nil {
					for _, attr := range t.Attr {
						if attr.Name.Local == "name" {
							dataName = attr.Value
						}
					}
				}
			case "value":
				if cur != nil && dataName != "" {
					inValue = true
					buf.Reset()
				}
			case "coordinates":
				if cur != nil {
					inCoords = true
					buf.Reset()
				}
			}
		case xml.CharData:
			if inValue || inCoords {
				buf.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "Placemark":
				if cur != nil {
					pms = append(pms, *cur)
					cur = nil
				}
			case "Data":
				dataName = ""
			case "value":
				if inValue {
					cur.data[dataName] = strings.TrimSpace(buf.String())
					inValue = false
				}
			case "coordinates":
				if inCoords {
					cur.coords = append(cur.coords, buf.String())
					inCoords = false
				}
			}
		}
	}
	return pms, nil
}

// parseRing parses a KML coordinate string ("lng,lat[,alt] ..." tuples)
// into a closed ring. Returns nil when fewer than 3 usable points remain.
func parseRing(coordText string) []geom.Coord {
	var ring []geom.Coord
	for _, tuple := range strings.Fields(coordText) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lng, err1 := strconv.ParseFloat(parts[0], 64)
		lat, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		ring = append(ring, geom.Coord{lng, lat})
	}
	if len(ring) < 3 {
		return nil
	}
	if !ring[0].Equal(geom.XY, ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return ring
}

// encodeMultiPolygon builds SRID 4326 EWKB from rings. Returns nil when
// no ring is usable.
func encodeMultiPolygon(rings [][]geom.Coord) ([]byte, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, ring := range rings {
		if ring == nil {
			continue
		}
		flat := make([]float64, 0, len(ring)*2)
		for _, c := range ring {
			flat = append(flat, c[0], c[1])
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("skipping malformed ring",
				zap.String("component", "importer"), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("skipping malformed polygon",
				zap.String("component", "importer"), zap.Error(err))
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, nil
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "importer: encode EWKB")
	}
	return data, nil
}

// ParseKMLZones extracts zone records from one municipality KML. The KML
// carries no LinkZona, so each placemark's (CODCOM, CODZONA) is resolved
// through the ZONE dataset lookup; placemarks with no match are skipped
// with a warning tally.
func ParseKMLZones(data []byte, semester string, lookup map[ZoneKey]ZoneInfo) ([]ZoneRecord, error) {
	if !omi.ValidSemester(semester) {
		return nil, eris.Errorf("importer: invalid semester %q", semester)
	}

	pms, err := parsePlacemarks(data)
	if err != nil {
		return nil, err
	}

	var (
		records []ZoneRecord
		skipped int
	)
	for _, pm := range pms {
		codcom := pm.data["CODCOM"]
		codzona := pm.data["CODZONA"]
		if codcom == "" || codzona == "" {
			continue
		}

		info, ok := lookup[ZoneKey{Belfiore: codcom, ZoneCode: codzona}]
		if !ok || !linkZonaRe.MatchString(info.LinkZona) {
			skipped++
			continue
		}

		rings := make([][]geom.Coord, 0, len(pm.coords))
		for _, coordText := range pm.coords {
			rings = append(rings, parseRing(coordText))
		}
		ewkbGeom, err := encodeMultiPolygon(rings)
		if err != nil {
			return nil, err
		}
		if ewkbGeom == nil {
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

	if skipped > 0 {
		zap.L().Warn("skipped placemarks with no matching zone description",
			zap.String("component", "importer"),
			zap.Int("count", skipped))
	}
	return records, nil
}
