package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/db"
	"github.com/vendocasa/omi-cli/internal/omi"
)

const defaultBatchSize = 5000

var zoneColumns = []string{
	"link_zona", "zone_code", "fascia", "municipality_istat",
	"municipality_name", "province_code", "zone_description",
	"semester", "geom",
}

var quotationColumns = []string{
	"link_zona", "semester", "property_type_code", "property_type_desc",
	"conservation_state", "is_prevalent", "price_min", "price_max",
	"surface_type_sale", "rent_min", "rent_max", "surface_type_rent",
}

// Loader bulk-loads parsed semester datasets. Semesters are immutable
// once imported: loads only ever touch their own semester, and Replace
// deletes that semester's rows before reloading.
type Loader struct {
	pool      db.Pool
	batchSize int
	replace   bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBatchSize sets the COPY batch size.
func WithBatchSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithReplace deletes the semester's existing rows before loading, so a
// failed import can be retried.
func WithReplace(replace bool) LoaderOption {
	return func(l *Loader) {
		l.replace = replace
	}
}

// NewLoader creates a Loader over the pool.
func NewLoader(pool db.Pool, opts ...LoaderOption) *Loader {
	l := &Loader{pool: pool, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadZones bulk-inserts zone records for one semester.
func (l *Loader) LoadZones(ctx context.Context, semester string, records []ZoneRecord) (int64, error) {
	if err := l.prepare(ctx, "zones", semester); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.Zone.LinkZona, r.Zone.ZoneCode, r.Zone.Fascia,
			nilIfEmpty(r.Zone.MunicipalityISTAT), r.Zone.MunicipalityName,
			nilIfEmpty(r.Zone.ProvinceCode), nilIfEmpty(r.Zone.Description),
			semester, r.Geom,
		})
	}
	return l.copyBatches(ctx, "zones", zoneColumns, rows)
}

// LoadQuotations bulk-inserts quotation rows for one semester.
func (l *Loader) LoadQuotations(ctx context.Context, semester string, quotations []omi.Quotation) (int64, error) {
	if err := l.prepare(ctx, "quotations", semester); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(quotations))
	for _, q := range quotations {
		rows = append(rows, []any{
			q.LinkZona, semester, q.PropertyTypeCode, nilIfEmpty(q.PropertyTypeDesc),
			nilIfEmpty(q.ConservationState), q.IsPrevalent, q.PriceMin, q.PriceMax,
			nilIfEmpty(q.SurfaceTypeSale), q.RentMin, q.RentMax, nilIfEmpty(q.SurfaceTypeRent),
		})
	}
	return l.copyBatches(ctx, "quotations", quotationColumns, rows)
}

// prepare optionally clears the semester before reloading it.
func (l *Loader) prepare(ctx context.Context, table, semester string) error {
	if !l.replace {
		return nil
	}
	tag, err := l.pool.Exec(ctx, "DELETE FROM omi."+table+" WHERE semester = $1", semester)
	if err != nil {
		return eris.Wrapf(err, "importer: clear %s for %s", table, semester)
	}
	if tag.RowsAffected() > 0 {
		zap.L().Info("cleared existing semester rows",
			zap.String("component", "importer"),
			zap.String("table", table),
			zap.String("semester", semester),
			zap.Int64("rows", tag.RowsAffected()))
	}
	return nil
}

func (l *Loader) copyBatches(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	log := zap.L().With(
		zap.String("component", "importer"),
		zap.String("table", "omi."+table),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for i := 0; i < len(rows); i += l.batchSize {
		end := i + l.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := db.CopyFromSchema(ctx, l.pool, "omi", table, columns, rows[i:end])
		if err != nil {
			return total, eris.Wrapf(err, "importer: load omi.%s (batch %d-%d)", table, i, end)
		}
		total += n

		log.Debug("batch loaded",
			zap.Int("batch_start", i),
			zap.Int("batch_end", end),
			zap.Int64("batch_rows", n))
	}

	log.Info("load complete", zap.Int64("rows", total))
	return total, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
