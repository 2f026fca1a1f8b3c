package omi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/db"
)

// Store runs read queries and transaction CRUD against the omi schema.
type Store struct {
	pool            db.Pool
	fallbackRadiusM float64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFallbackRadius overrides the nearest-zone fallback cutoff in meters.
func WithFallbackRadius(meters float64) StoreOption {
	return func(s *Store) {
		if meters > 0 {
			s.fallbackRadiusM = meters
		}
	}
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool db.Pool, opts ...StoreOption) *Store {
	s := &Store{pool: pool, fallbackRadiusM: DefaultFallbackRadiusM}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuotationsFor fetches all conservation-state rows for a zone, semester,
// and property type, prevalent rows first.
func (s *Store) QuotationsFor(ctx context.Context, linkZona, semester string, propertyType int) ([]Quotation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT link_zona, semester, property_type_code, property_type_desc,
		       conservation_state, is_prevalent, price_min, price_max,
		       surface_type_sale, rent_min, rent_max, surface_type_rent
		FROM omi.quotations
		WHERE link_zona = $1 AND semester = $2 AND property_type_code = $3
		ORDER BY is_prevalent DESC, conservation_state`,
		linkZona, semester, propertyType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "omi: quotations query")
	}
	return scanQuotations(rows)
}

// QuotationsForZone fetches every quotation row for a zone and semester
// across all property types.
func (s *Store) QuotationsForZone(ctx context.Context, linkZona, semester string) ([]Quotation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT link_zona, semester, property_type_code, property_type_desc,
		       conservation_state, is_prevalent, price_min, price_max,
		       surface_type_sale, rent_min, rent_max, surface_type_rent
		FROM omi.quotations
		WHERE link_zona = $1 AND semester = $2
		ORDER BY property_type_code, is_prevalent DESC`,
		linkZona, semester,
	)
	if err != nil {
		return nil, eris.Wrap(err, "omi: zone quotations query")
	}
	return scanQuotations(rows)
}

// RecentComparables fetches up to limit most recent transactions linked to
// the zone by either the current LinkZona or the legacy OMI zone code. A
// transaction may carry only the legacy code, so both keys are tried.
func (s *Store) RecentComparables(ctx context.Context, linkZona, zoneCode string, limit int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transaction_date, transaction_type, declared_price, municipality,
		       omi_zone, link_zona, cadastral_category, cadastral_vani,
		       cadastral_mq, cadastral_mc, notes, created_at
		FROM omi.transactions
		WHERE link_zona = $1 OR omi_zone = $2
		ORDER BY transaction_date DESC NULLS LAST
		LIMIT $3`,
		linkZona, zoneCode, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "omi: comparables query")
	}
	return scanTransactions(rows)
}

// CreateTransaction inserts a user-entered transaction and fills in its
// ID and creation timestamp.
func (s *Store) CreateTransaction(ctx context.Context, t *Transaction) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO omi.transactions
			(transaction_date, transaction_type, declared_price, municipality,
			 omi_zone, link_zona, cadastral_category, cadastral_vani,
			 cadastral_mq, cadastral_mc, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		t.Date, nilIfEmpty(t.Type), t.DeclaredPrice, nilIfEmpty(t.Municipality),
		nilIfEmpty(t.OMIZone), nilIfEmpty(t.LinkZona), nilIfEmpty(t.CadastralCategory),
		t.CadastralVani, t.CadastralMq, t.CadastralMc, nilIfEmpty(t.Notes),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "omi: insert transaction")
	}
	return nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var conds []string
	var args []any

	if filter.LinkZona != "" {
		args = append(args, filter.LinkZona)
		conds = append(conds, fmt.Sprintf("link_zona = $%d", len(args)))
	}
	if filter.Municipality != "" {
		args = append(args, filter.Municipality)
		conds = append(conds, fmt.Sprintf("UPPER(municipality) = UPPER($%d)", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, transaction_date, transaction_type, declared_price, municipality,
		       omi_zone, link_zona, cadastral_category, cadastral_vani,
		       cadastral_mq, cadastral_mc, notes, created_at
		FROM omi.transactions
		%s
		ORDER BY transaction_date DESC NULLS LAST`, where),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "omi: list transactions query")
	}
	return scanTransactions(rows)
}

// TransactionUpdate holds the fields of a partial transaction update.
// Nil fields are left untouched.
type TransactionUpdate struct {
	Date              *string  `json:"transaction_date,omitempty"`
	Type              *string  `json:"transaction_type,omitempty"`
	DeclaredPrice     *float64 `json:"declared_price,omitempty"`
	Municipality      *string  `json:"municipality,omitempty"`
	OMIZone           *string  `json:"omi_zone,omitempty"`
	LinkZona          *string  `json:"link_zona,omitempty"`
	CadastralCategory *string  `json:"cadastral_category,omitempty"`
	CadastralVani     *float64 `json:"cadastral_vani,omitempty"`
	CadastralMq       *float64 `json:"cadastral_mq,omitempty"`
	CadastralMc       *float64 `json:"cadastral_mc,omitempty"`
	Notes             *string  `json:"notes,omitempty"`
}

// ErrNoFields is returned by UpdateTransaction when the update carries no
// fields at all.
var ErrNoFields = eris.New("omi: no fields to update")

// ErrTransactionNotFound is returned when an update or delete targets a
// transaction that does not exist.
var ErrTransactionNotFound = eris.New("omi: transaction not found")

// UpdateTransaction applies a partial update to a transaction.
func (s *Store) UpdateTransaction(ctx context.Context, id int, upd TransactionUpdate) error {
	var sets []string
	var args []any

	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Date != nil {
		add("transaction_date", *upd.Date)
	}
	if upd.Type != nil {
		add("transaction_type", *upd.Type)
	}
	if upd.DeclaredPrice != nil {
		add("declared_price", *upd.DeclaredPrice)
	}
	if upd.Municipality != nil {
		add("municipality", *upd.Municipality)
	}
	if upd.OMIZone != nil {
		add("omi_zone", *upd.OMIZone)
	}
	if upd.LinkZona != nil {
		add("link_zona", *upd.LinkZona)
	}
	if upd.CadastralCategory != nil {
		add("cadastral_category", *upd.CadastralCategory)
	}
	if upd.CadastralVani != nil {
		add("cadastral_vani", *upd.CadastralVani)
	}
	if upd.CadastralMq != nil {
		add("cadastral_mq", *upd.CadastralMq)
	}
	if upd.CadastralMc != nil {
		add("cadastral_mc", *upd.CadastralMc)
	}
	if upd.Notes != nil {
		add("notes", *upd.Notes)
	}

	if len(sets) == 0 {
		return ErrNoFields
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE omi.transactions SET %s WHERE id = $%d RETURNING id",
		strings.Join(sets, ", "), len(args))

	var updated int
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return eris.Wrap(err, "omi: update transaction")
	}
	return nil
}

// DeleteTransaction removes a transaction by ID.
func (s *Store) DeleteTransaction(ctx context.Context, id int) error {
	var deleted int
	err := s.pool.QueryRow(ctx,
		`DELETE FROM omi.transactions WHERE id = $1 RETURNING id`, id,
	).Scan(&deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return eris.Wrap(err, "omi: delete transaction")
	}
	return nil
}

// GeoJSONFeature is one zone polygon with its display properties.
type GeoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// GeoJSONCollection is a GeoJSON FeatureCollection of zone polygons.
type GeoJSONCollection struct {
	Type     string           `json:"type"`
	Features []GeoJSONFeature `json:"features"`
}

// BBox is a geographic bounding box filter.
type BBox struct {
	MinLng float64
	MinLat float64
	MaxLng float64
	MaxLat float64
}

// ResidentialTypeCode is the OMI property type for civil dwellings
// (20 = "Abitazioni civili"), the default for valuations and for the
// per-zone price band shown on the map.
const ResidentialTypeCode = 20

// ZonesGeoJSON returns the semester's zone polygons as a GeoJSON
// FeatureCollection for map display, each annotated with the prevalent
// residential price band when one exists.
func (s *Store) ZonesGeoJSON(ctx context.Context, semester string, bbox *BBox) (*GeoJSONCollection, error) {
	sql := `
		SELECT z.link_zona, z.zone_code, z.fascia, z.municipality_name, z.zone_description,
		       ST_AsGeoJSON(z.geom) AS geojson,
		       q.price_min, q.price_max
		FROM omi.zones z
		LEFT JOIN LATERAL (
			SELECT price_min, price_max
			FROM omi.quotations
			WHERE link_zona = z.link_zona
			  AND semester = z.semester
			  AND property_type_code = $2
			  AND is_prevalent = true
			LIMIT 1
		) q ON true
		WHERE z.semester = $1`
	args := []any{semester, ResidentialTypeCode}

	if bbox != nil {
		sql += ` AND z.geom && ST_MakeEnvelope($3, $4, $5, $6, 4326)`
		args = append(args, bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "omi: zones geojson query")
	}
	defer rows.Close()

	fc := &GeoJSONCollection{Type: "FeatureCollection", Features: []GeoJSONFeature{}}
	for rows.Next() {
		var z Zone
		var geojson []byte
		var priceMin, priceMax *float64
		if err := rows.Scan(&z.LinkZona, &z.ZoneCode, &z.Fascia, &z.MunicipalityName,
			&z.Description, &geojson, &priceMin, &priceMax); err != nil {
			return nil, eris.Wrap(err, "omi: scan geojson row")
		}
		fc.Features = append(fc.Features, GeoJSONFeature{
			Type:     "Feature",
			Geometry: json.RawMessage(geojson),
			Properties: map[string]any{
				"link_zona":    z.LinkZona,
				"zone_code":    z.ZoneCode,
				"fascia":       z.Fascia,
				"municipality": z.MunicipalityName,
				"description":  z.Description,
				"price_min":    priceMin,
				"price_max":    priceMax,
			},
		})
	}
	return fc, rows.Err()
}

func scanQuotations(rows pgx.Rows) ([]Quotation, error) {
	defer rows.Close()

	var quotations []Quotation
	for rows.Next() {
		var q Quotation
		var typeDesc, state, surfSale, surfRent *string
		if err := rows.Scan(
			&q.LinkZona, &q.Semester, &q.PropertyTypeCode, &typeDesc,
			&state, &q.IsPrevalent, &q.PriceMin, &q.PriceMax,
			&surfSale, &q.RentMin, &q.RentMax, &surfRent,
		); err != nil {
			return nil, eris.Wrap(err, "omi: scan quotation row")
		}
		q.PropertyTypeDesc = deref(typeDesc)
		q.ConservationState = deref(state)
		q.SurfaceTypeSale = deref(surfSale)
		q.SurfaceTypeRent = deref(surfRent)

		// min > max happens in the source data; keep the row, note it.
		if q.PriceMin != nil && q.PriceMax != nil && *q.PriceMin > *q.PriceMax {
			zap.L().Warn("omi: quotation with price_min > price_max",
				zap.String("link_zona", q.LinkZona),
				zap.String("state", q.ConservationState),
			)
		}
		quotations = append(quotations, q)
	}
	return quotations, rows.Err()
}

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var txType, municipality, omiZone, linkZona, category, notes *string
		if err := rows.Scan(
			&t.ID, &t.Date, &txType, &t.DeclaredPrice, &municipality,
			&omiZone, &linkZona, &category, &t.CadastralVani,
			&t.CadastralMq, &t.CadastralMc, &notes, &t.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "omi: scan transaction row")
		}
		t.Type = deref(txType)
		t.Municipality = deref(municipality)
		t.OMIZone = deref(omiZone)
		t.LinkZona = deref(linkZona)
		t.CadastralCategory = deref(category)
		t.Notes = deref(notes)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage in Postgres.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
