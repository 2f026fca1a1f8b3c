// Package omi holds the OMI domain model and its PostGIS-backed store:
// semester-versioned zone polygons, price quotations, and comparable
// transactions.
package omi

import "time"

// Zone is a price-band administrative polygon, versioned by semester.
// (link_zona, semester) is unique; rows are immutable once imported and
// superseded by the next semester's row set. The polygon geometry lives
// only in PostGIS.
type Zone struct {
	LinkZona          string `json:"link_zona"`
	ZoneCode          string `json:"zone_code"`
	Fascia            string `json:"fascia"`
	MunicipalityISTAT string `json:"municipality_istat,omitempty"`
	MunicipalityName  string `json:"municipality"`
	ProvinceCode      string `json:"province_code,omitempty"`
	Description       string `json:"description"`
	Semester          string `json:"semester"`
}

// ZoneMatch is the outcome of resolving a point to a zone. DistanceM is
// nil for exact containment and carries the geodesic distance in meters
// when the zone was found via the nearest-boundary fallback.
type ZoneMatch struct {
	Zone
	DistanceM *float64 `json:"distance_m,omitempty"`
}

// Quotation is a price/rent band for one (zone, semester, property type,
// conservation state) tuple. Price bounds are pointers because the source
// data leaves either end empty for thin markets.
type Quotation struct {
	LinkZona          string   `json:"link_zona"`
	Semester          string   `json:"semester"`
	PropertyTypeCode  int      `json:"property_type_code"`
	PropertyTypeDesc  string   `json:"property_type_desc"`
	ConservationState string   `json:"conservation_state"`
	IsPrevalent       bool     `json:"is_prevalent"`
	PriceMin          *float64 `json:"price_min"`
	PriceMax          *float64 `json:"price_max"`
	SurfaceTypeSale   string   `json:"surface_type_sale,omitempty"`
	RentMin           *float64 `json:"rent_min,omitempty"`
	RentMax           *float64 `json:"rent_max,omitempty"`
	SurfaceTypeRent   string   `json:"surface_type_rent,omitempty"`
}

// Transaction is a real sale/rent record used as a valuation benchmark.
// It is user-maintained and independent of the zone/quotation lifecycle;
// the zone link may be the current LinkZona, the legacy OMIZone code, or
// both.
type Transaction struct {
	ID                int        `json:"id"`
	Date              *time.Time `json:"transaction_date"`
	Type              string     `json:"transaction_type,omitempty"`
	DeclaredPrice     *float64   `json:"declared_price"`
	Municipality      string     `json:"municipality,omitempty"`
	OMIZone           string     `json:"omi_zone,omitempty"`
	LinkZona          string     `json:"link_zona,omitempty"`
	CadastralCategory string     `json:"cadastral_category,omitempty"`
	CadastralVani     *float64   `json:"cadastral_vani"`
	CadastralMq       *float64   `json:"cadastral_mq"`
	CadastralMc       *float64   `json:"cadastral_mc,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	LinkZona     string
	Municipality string
}

// StateBand is one conservation state's price band within a zone, used by
// the enhanced valuation grouping.
type StateBand struct {
	PriceMin        float64 `json:"price_min"`
	PriceMax        float64 `json:"price_max"`
	IsPrevalent     bool    `json:"is_prevalent"`
	SurfaceTypeSale string  `json:"surface_type_sale,omitempty"`
}
