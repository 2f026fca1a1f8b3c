package importer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/omi"
)

// linkZonaRe validates the national zone key: 2 uppercase letters (the
// province) followed by 8 digits.
var linkZonaRe = regexp.MustCompile(`^[A-Z]{2}\d{8}$`)

// ParseQuotations parses a VALORI dataset into quotation rows for the
// given semester. Rows with an invalid LinkZona are dropped with a
// warning; duplicate (link_zona, property_type, conservation_state) rows
// keep the first occurrence; bands with min greater than max are kept as
// published and logged.
func ParseQuotations(data []byte, semester string) ([]omi.Quotation, error) {
	header, rows, err := readSemicolonCSV(data)
	if err != nil {
		return nil, err
	}
	return parseQuotationRows(header, rows, semester)
}

func parseQuotationRows(header []string, rows [][]string, semester string) ([]omi.Quotation, error) {
	if !omi.ValidSemester(semester) {
		return nil, eris.Errorf("importer: invalid semester %q", semester)
	}

	idx := columnIndex(header)
	if _, ok := idx["LinkZona"]; !ok {
		return nil, eris.New("importer: VALORI header missing LinkZona column")
	}

	log := zap.L().With(
		zap.String("component", "importer"),
		zap.String("semester", semester),
	)

	type quotationKey struct {
		linkZona string
		propType int
		state    string
	}
	seen := make(map[quotationKey]bool, len(rows))

	var (
		out       []omi.Quotation
		invalid   int
		inverted  int
		duplicate int
	)
	for _, row := range rows {
		linkZona := field(row, idx, "LinkZona")
		if !linkZonaRe.MatchString(linkZona) {
			invalid++
			if invalid <= 5 {
				log.Warn("dropping row with invalid LinkZona", zap.String("link_zona", linkZona))
			}
			continue
		}

		propType, _ := strconv.Atoi(field(row, idx, "Cod_Tip"))
		state := field(row, idx, "Stato")

		key := quotationKey{linkZona, propType, state}
		if seen[key] {
			duplicate++
			continue
		}
		seen[key] = true

		q := omi.Quotation{
			LinkZona:          linkZona,
			Semester:          semester,
			PropertyTypeCode:  propType,
			PropertyTypeDesc:  field(row, idx, "Descr_Tipologia"),
			ConservationState: state,
			IsPrevalent:       strings.EqualFold(field(row, idx, "Stato_prev"), "P"),
			PriceMin:          parseDecimal(field(row, idx, "Compr_min")),
			PriceMax:          parseDecimal(field(row, idx, "Compr_max")),
			SurfaceTypeSale:   field(row, idx, "Sup_NL_compr"),
			RentMin:           parseDecimal(field(row, idx, "Loc_min")),
			RentMax:           parseDecimal(field(row, idx, "Loc_max")),
			SurfaceTypeRent:   field(row, idx, "Sup_NL_loc"),
		}

		if q.PriceMin != nil && q.PriceMax != nil && *q.PriceMin > *q.PriceMax {
			inverted++
			log.Warn("price band min greater than max, keeping as published",
				zap.String("link_zona", linkZona),
				zap.Float64("price_min", *q.PriceMin),
				zap.Float64("price_max", *q.PriceMax))
		}

		out = append(out, q)
	}

	if invalid > 0 {
		log.Warn("dropped rows with invalid LinkZona", zap.Int("count", invalid))
	}
	if duplicate > 0 {
		log.Info("dropped duplicate quotation rows", zap.Int("count", duplicate))
	}
	log.Info("parsed quotations",
		zap.Int("rows", len(out)),
		zap.Int("inverted_bands", inverted))
	return out, nil
}

// ZoneKey identifies a zone within the ZONE dataset: the municipality's
// Belfiore code plus the local zone code.
type ZoneKey struct {
	Belfiore string
	ZoneCode string
}

// ZoneInfo is the descriptive ZONE CSV record used to resolve the
// LinkZona and metadata for a perimeter keyed by (CODCOM, CODZONA).
type ZoneInfo struct {
	LinkZona          string
	ProvinceCode      string
	MunicipalityISTAT string
	MunicipalityName  string
	Fascia            string
	ZoneCode          string
	Description       string
}

// ParseZoneDescriptions builds the (Belfiore, zone code) lookup from a
// ZONE dataset. The perimeter files carry no LinkZona, so this mapping is
// what ties geometry to quotations.
func ParseZoneDescriptions(data []byte) (map[ZoneKey]ZoneInfo, error) {
	header, rows, err := readSemicolonCSV(data)
	if err != nil {
		return nil, err
	}

	idx := columnIndex(header)
	lookup := make(map[ZoneKey]ZoneInfo, len(rows))
	for _, row := range rows {
		key := ZoneKey{
			Belfiore: field(row, idx, "Comune_amm"),
			ZoneCode: field(row, idx, "Zona"),
		}
		if key.Belfiore == "" || key.ZoneCode == "" {
			continue
		}
		lookup[key] = ZoneInfo{
			LinkZona:          field(row, idx, "LinkZona"),
			ProvinceCode:      field(row, idx, "Prov"),
			MunicipalityISTAT: field(row, idx, "Comune_ISTAT"),
			MunicipalityName:  field(row, idx, "Comune_descrizione"),
			Fascia:            field(row, idx, "Fascia"),
			ZoneCode:          key.ZoneCode,
			Description:       strings.Trim(field(row, idx, "Zona_Descr"), "' "),
		}
	}

	zap.L().Info("built zone description lookup",
		zap.String("component", "importer"),
		zap.Int("entries", len(lookup)))
	return lookup, nil
}
