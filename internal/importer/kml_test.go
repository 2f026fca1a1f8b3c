package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

const sampleKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
<Document>
<name>MILANO (MI) Anno/Semestre 2024/2 generato il 01/03/2025</name>
<Folder>
<Placemark>
<ExtendedData>
<Data name="CODCOM"><value>F205</value></Data>
<Data name="CODZONA"><value>B1</value></Data>
<Data name="LINKZONA"><value></value></Data>
</ExtendedData>
<MultiGeometry>
<Polygon><outerBoundaryIs><LinearRing><coordinates>
9.18,45.46,0 9.20,45.46,0 9.20,45.47,0 9.18,45.46,0
</coordinates></LinearRing></outerBoundaryIs></Polygon>
</MultiGeometry>
</Placemark>
<Placemark>
<ExtendedData>
<Data name="CODCOM"><value>F205</value></Data>
<Data name="CODZONA"><value>Z9</value></Data>
</ExtendedData>
<Polygon><outerBoundaryIs><LinearRing><coordinates>
9.30,45.50,0 9.31,45.50,0 9.31,45.51,0
</coordinates></LinearRing></outerBoundaryIs></Polygon>
</Placemark>
</Folder>
</Document>
</kml>`

func milanLookup() map[ZoneKey]ZoneInfo {
	return map[ZoneKey]ZoneInfo{
		{Belfiore: "F205", ZoneCode: "B1"}: {
			LinkZona:          "MI00000001",
			ProvinceCode:      "MI",
			MunicipalityISTAT: "015146",
			MunicipalityName:  "MILANO",
			Fascia:            "B",
			ZoneCode:          "B1",
			Description:       "Centro storico",
		},
	}
}

func TestSemesterFromKML(t *testing.T) {
	assert.Equal(t, "2024_S2", SemesterFromKML([]byte(sampleKML)))
	assert.Equal(t, "", SemesterFromKML([]byte("<kml><Document><name>no header</name></Document></kml>")))
}

func TestParseKMLZones(t *testing.T) {
	records, err := ParseKMLZones([]byte(sampleKML), "2024_S2", milanLookup())
	require.NoError(t, err)

	// The Z9 placemark has no lookup entry and is skipped.
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "MI00000001", r.Zone.LinkZona)
	assert.Equal(t, "B1", r.Zone.ZoneCode)
	assert.Equal(t, "MILANO", r.Zone.MunicipalityName)
	assert.Equal(t, "2024_S2", r.Zone.Semester)
	require.NotEmpty(t, r.Geom)

	g, err := ewkb.Unmarshal(r.Geom)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 4326, mp.SRID())
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestParseKMLZones_ClosesOpenRings(t *testing.T) {
	kml := `<kml xmlns="http://www.opengis.net/kml/2.2"><Document><Placemark>
<ExtendedData>
<Data name="CODCOM"><value>F205</value></Data>
<Data name="CODZONA"><value>B1</value></Data>
</ExtendedData>
<Polygon><outerBoundaryIs><LinearRing><coordinates>
9.18,45.46 9.20,45.46 9.20,45.47
</coordinates></LinearRing></outerBoundaryIs></Polygon>
</Placemark></Document></kml>`

	records, err := ParseKMLZones([]byte(kml), "2024_S2", milanLookup())
	require.NoError(t, err)
	require.Len(t, records, 1)

	g, err := ewkb.Unmarshal(records[0].Geom)
	require.NoError(t, err)
	mp := g.(*geom.MultiPolygon)
	ring := mp.Polygon(0).LinearRing(0)
	require.Equal(t, 4, ring.NumCoords())
	assert.Equal(t, ring.Coord(0), ring.Coord(3))
}

func TestParseKMLZones_DegenerateGeometrySkipped(t *testing.T) {
	kml := `<kml xmlns="http://www.opengis.net/kml/2.2"><Document><Placemark>
<ExtendedData>
<Data name="CODCOM"><value>F205</value></Data>
<Data name="CODZONA"><value>B1</value></Data>
</ExtendedData>
<Polygon><outerBoundaryIs><LinearRing><coordinates>
9.18,45.46 9.20,45.46
</coordinates></LinearRing></outerBoundaryIs></Polygon>
</Placemark></Document></kml>`

	records, err := ParseKMLZones([]byte(kml), "2024_S2", milanLookup())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseKMLZones_InvalidSemester(t *testing.T) {
	_, err := ParseKMLZones([]byte(sampleKML), "20242", milanLookup())
	require.Error(t, err)
}
