package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/shelf-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	sqliteQueries
	db *sql.DB
}

// sqlExecer is the query surface shared by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteQueries struct {
	q sqlExecer
}

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// NewSQLite opens a SQLite database at the given path with WAL mode and
// foreign keys enforced on every connection.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{sqliteQueries: sqliteQueries{q: db}, db: db}, nil
}

func sqliteDSN(path string) string {
	params := make([]string, 0, len(sqlitePragmas)+1)
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_time_format=sqlite")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stores (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	website TEXT
);

CREATE TABLE IF NOT EXISTS manufacturers (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	website TEXT
);

CREATE TABLE IF NOT EXISTS products (
	ean             INTEGER PRIMARY KEY CHECK (ean > 0),
	manufacturer_id TEXT REFERENCES manufacturers(id) ON DELETE SET NULL,
	is_followed     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS prices (
	id          TEXT PRIMARY KEY,
	product_ean INTEGER NOT NULL REFERENCES products(ean),
	store_id    TEXT NOT NULL REFERENCES stores(id),
	value       REAL NOT NULL,
	observed_on TEXT NOT NULL,
	UNIQUE (product_ean, store_id, observed_on)
);

CREATE TABLE IF NOT EXISTS scrap_records (
	id                     TEXT PRIMARY KEY,
	product_ean            INTEGER NOT NULL REFERENCES products(ean),
	store_id               TEXT NOT NULL REFERENCES stores(id),
	manufacturer_id        TEXT NOT NULL REFERENCES manufacturers(id) ON DELETE CASCADE,
	product_name           TEXT NOT NULL,
	weight                 INTEGER NOT NULL DEFAULT -1,
	flavour                TEXT NOT NULL,
	food_type              TEXT NOT NULL,
	age_group              TEXT NOT NULL,
	composition            TEXT NOT NULL,
	analytical_composition TEXT,
	dietary_supplements    TEXT,
	valid_from             DATETIME NOT NULL,
	valid_to               DATETIME,
	is_valid               INTEGER GENERATED ALWAYS AS (valid_to IS NULL) VIRTUAL
);

CREATE TABLE IF NOT EXISTS analytical_components (
	id        TEXT PRIMARY KEY,
	record_id TEXT NOT NULL REFERENCES scrap_records(id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	value     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS dietary_components (
	id            TEXT PRIMARY KEY,
	record_id     TEXT NOT NULL REFERENCES scrap_records(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	value         REAL,
	unit          TEXT,
	chemical_form TEXT
);

CREATE TABLE IF NOT EXISTS run_locks (
	name        TEXT PRIMARY KEY,
	holder      TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_scrap_records_live ON scrap_records(product_ean, store_id) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_scrap_records_product ON scrap_records(product_ean);
CREATE INDEX IF NOT EXISTS idx_scrap_records_valid_to ON scrap_records(valid_to);
CREATE INDEX IF NOT EXISTS idx_prices_product ON prices(product_ean);
CREATE INDEX IF NOT EXISTS idx_analytical_components_record ON analytical_components(record_id);
CREATE INDEX IF NOT EXISTS idx_dietary_components_record ON dietary_components(record_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteQueries{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) AcquireRunLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	holder := uuid.New().String()
	now := time.Now().UTC()

	err := s.InTx(ctx, func(q Queries) error {
		tx := q.(*sqliteQueries).q
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM run_locks WHERE name = ? AND expires_at <= ?`,
			name, now.Unix(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: expire run lock %s", name)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO run_locks (name, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			name, holder, now.Unix(), now.Add(ttl).Unix(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert run lock %s", name)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return eris.Wrapf(ErrLocked, "sqlite: lock %s", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = ? AND holder = ?`, name, holder)
		return eris.Wrapf(err, "sqlite: release run lock %s", name)
	}, nil
}

// --- identity ---

func (s *sqliteQueries) GetOrCreateStore(ctx context.Context, name string) (*model.Store, error) {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO stores (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		uuid.New().String(), name,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert store %s", name)
	}
	return s.GetStoreByName(ctx, name)
}

func (s *sqliteQueries) GetStoreByName(ctx context.Context, name string) (*model.Store, error) {
	var st model.Store
	var website sql.NullString
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, website FROM stores WHERE name = ?`, name,
	).Scan(&st.ID, &st.Name, &website)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: store %s", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get store %s", name)
	}
	st.Website = nullStringPtr(website)
	return &st, nil
}

func (s *sqliteQueries) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, website FROM stores ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close() //nolint:errcheck

	var stores []model.Store
	for rows.Next() {
		var st model.Store
		var website sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &website); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		st.Website = nullStringPtr(website)
		stores = append(stores, st)
	}
	return stores, eris.Wrap(rows.Err(), "sqlite: list stores iterate")
}

func (s *sqliteQueries) GetOrCreateManufacturer(ctx context.Context, name string) (*model.Manufacturer, error) {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO manufacturers (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		uuid.New().String(), name,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert manufacturer %s", name)
	}

	var m model.Manufacturer
	var website sql.NullString
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, website FROM manufacturers WHERE name = ?`, name,
	).Scan(&m.ID, &m.Name, &website)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get manufacturer %s", name)
	}
	m.Website = nullStringPtr(website)
	return &m, nil
}

func (s *sqliteQueries) GetOrCreateProduct(ctx context.Context, ean int64, manufacturerID string) (*model.Product, error) {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO products (ean, manufacturer_id, is_followed) VALUES (?, ?, 1) ON CONFLICT(ean) DO NOTHING`,
		ean, nullIfEmpty(manufacturerID),
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert product %d", ean)
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT ean, manufacturer_id, is_followed FROM products WHERE ean = ?`, ean,
	)
	p, err := scanProduct(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %d", ean)
	}
	return p, nil
}

func (s *sqliteQueries) DeleteManufacturer(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM manufacturers WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete manufacturer %s", id)
	}
	return checkRowsAffected(res, "manufacturer", id)
}

// --- scrap records ---

const recordColumns = `id, product_ean, store_id, manufacturer_id, product_name, weight, flavour, food_type, age_group,
	composition, analytical_composition, dietary_supplements, valid_from, valid_to`

func (s *sqliteQueries) GetLiveRecord(ctx context.Context, ean int64, storeID string) (*model.ScrapRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM scrap_records
		 WHERE product_ean = ? AND store_id = ? AND valid_to IS NULL`,
		ean, storeID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get live record %d", ean)
	}
	return rec, nil
}

func (s *sqliteQueries) InsertRecord(ctx context.Context, rec *model.ScrapRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO scrap_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProductEAN, rec.StoreID, rec.ManufacturerID, rec.ProductName, rec.Weight,
		rec.Flavour, rec.FoodType, rec.AgeGroup, rec.Composition,
		ptrNullString(rec.AnalyticalComposition), ptrNullString(rec.DietarySupplements),
		rec.ValidFrom.UTC(), ptrNullTime(rec.ValidTo),
	)
	return eris.Wrapf(err, "sqlite: insert record for %d", rec.ProductEAN)
}

func (s *sqliteQueries) SupersedeRecord(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE scrap_records SET valid_to = ? WHERE id = ? AND valid_to IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: supersede record %s", id)
	}
	return checkRowsAffected(res, "live record", id)
}

func (s *sqliteQueries) ExtendRecordValidity(ctx context.Context, id string, from time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE scrap_records SET valid_from = ? WHERE id = ? AND valid_to IS NULL`,
		from.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: extend record %s", id)
	}
	return checkRowsAffected(res, "live record", id)
}

func (s *sqliteQueries) ListLiveRecords(ctx context.Context) ([]model.ScrapRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM scrap_records WHERE valid_to IS NULL ORDER BY product_ean, store_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list live records")
	}
	return collectRecords(rows)
}

func (s *sqliteQueries) ListRecordHistory(ctx context.Context, ean int64) ([]model.ScrapRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM scrap_records WHERE product_ean = ? ORDER BY store_id, valid_from`,
		ean,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list record history %d", ean)
	}
	return collectRecords(rows)
}

// --- prices ---

func (s *sqliteQueries) InsertPrice(ctx context.Context, p *model.PriceObservation) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Date = model.DateOnly(p.Date)
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO prices (id, product_ean, store_id, value, observed_on) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(product_ean, store_id, observed_on) DO NOTHING`,
		p.ID, p.ProductEAN, p.StoreID, p.Value, p.Date.Format(time.DateOnly),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert price for %d", p.ProductEAN)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *sqliteQueries) ListPrices(ctx context.Context, ean int64) ([]model.PriceObservation, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, product_ean, store_id, value, observed_on FROM prices WHERE product_ean = ? ORDER BY observed_on, store_id`,
		ean,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list prices %d", ean)
	}
	defer rows.Close() //nolint:errcheck

	var prices []model.PriceObservation
	for rows.Next() {
		var p model.PriceObservation
		var observed string
		if err := rows.Scan(&p.ID, &p.ProductEAN, &p.StoreID, &p.Value, &observed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price")
		}
		d, err := time.Parse(time.DateOnly, observed)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse price date %q", observed)
		}
		p.Date = d
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "sqlite: list prices iterate")
}

// --- products ---

func (s *sqliteQueries) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT ean, manufacturer_id, is_followed FROM products ORDER BY ean`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close() //nolint:errcheck

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *sqliteQueries) SetFollowed(ctx context.Context, ean int64, followed bool) error {
	res, err := s.q.ExecContext(ctx, `UPDATE products SET is_followed = ? WHERE ean = ?`, followed, ean)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set followed %d", ean)
	}
	return checkRowsAffected(res, "product", fmt.Sprint(ean))
}

// --- extraction ---

func (s *sqliteQueries) PendingTexts(ctx context.Context, kind model.ComponentKind) ([]string, error) {
	textCol, table, ok := kindTables(kind)
	if !ok {
		return nil, eris.Errorf("sqlite: unknown component kind %q", kind)
	}
	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT r.%[1]s FROM scrap_records r
		 JOIN products p ON p.ean = r.product_ean
		 WHERE p.is_followed = 1 AND r.valid_to IS NULL
		   AND r.%[1]s IS NOT NULL AND r.%[1]s <> ''
		   AND NOT EXISTS (SELECT 1 FROM %[2]s c WHERE c.record_id = r.id)
		 ORDER BY 1`, textCol, table))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: pending %s texts", kind)
	}
	return collectStrings(rows)
}

func (s *sqliteQueries) RecordsAwaitingExtraction(ctx context.Context, kind model.ComponentKind, text string) ([]model.ScrapRecord, error) {
	textCol, table, ok := kindTables(kind)
	if !ok {
		return nil, eris.Errorf("sqlite: unknown component kind %q", kind)
	}
	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(
		`SELECT `+recordColumns+` FROM scrap_records r
		 WHERE r.valid_to IS NULL AND r.%s = ?
		   AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.record_id = r.id)
		 ORDER BY r.product_ean, r.store_id`, textCol, table), text)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: records awaiting %s extraction", kind)
	}
	return collectRecords(rows)
}

func (s *sqliteQueries) InsertAnalyticalComponents(ctx context.Context, comps []model.AnalyticalComponent) error {
	for i := range comps {
		c := &comps[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO analytical_components (id, record_id, name, value) VALUES (?, ?, ?, ?)`,
			c.ID, c.RecordID, c.Name, c.Value,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert analytical component for %s", c.RecordID)
		}
	}
	return nil
}

func (s *sqliteQueries) InsertDietaryComponents(ctx context.Context, comps []model.DietaryComponent) error {
	for i := range comps {
		c := &comps[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO dietary_components (id, record_id, name, value, unit, chemical_form) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.RecordID, c.Name, ptrNullFloat(c.Value), ptrNullString(c.Unit), ptrNullString(c.ChemicalForm),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert dietary component for %s", c.RecordID)
		}
	}
	return nil
}

func (s *sqliteQueries) ListAnalyticalComponents(ctx context.Context, recordID string) ([]model.AnalyticalComponent, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, record_id, name, value FROM analytical_components WHERE record_id = ? ORDER BY name`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list analytical components %s", recordID)
	}
	defer rows.Close() //nolint:errcheck

	var comps []model.AnalyticalComponent
	for rows.Next() {
		var c model.AnalyticalComponent
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Name, &c.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analytical component")
		}
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "sqlite: list analytical components iterate")
}

func (s *sqliteQueries) ListDietaryComponents(ctx context.Context, recordID string) ([]model.DietaryComponent, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, record_id, name, value, unit, chemical_form FROM dietary_components WHERE record_id = ? ORDER BY name`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list dietary components %s", recordID)
	}
	defer rows.Close() //nolint:errcheck

	var comps []model.DietaryComponent
	for rows.Next() {
		var c model.DietaryComponent
		var value sql.NullFloat64
		var unit, form sql.NullString
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Name, &value, &unit, &form); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dietary component")
		}
		if value.Valid {
			c.Value = &value.Float64
		}
		c.Unit = nullStringPtr(unit)
		c.ChemicalForm = nullStringPtr(form)
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "sqlite: list dietary components iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (*model.Product, error) {
	var p model.Product
	var manufacturerID sql.NullString
	if err := row.Scan(&p.EAN, &manufacturerID, &p.IsFollowed); err != nil {
		return nil, err
	}
	p.ManufacturerID = manufacturerID.String
	return &p, nil
}

func scanRecord(row scannable) (*model.ScrapRecord, error) {
	var r model.ScrapRecord
	var analytical, dietary sql.NullString
	var validTo sql.NullTime
	err := row.Scan(
		&r.ID, &r.ProductEAN, &r.StoreID, &r.ManufacturerID, &r.ProductName, &r.Weight,
		&r.Flavour, &r.FoodType, &r.AgeGroup, &r.Composition, &analytical, &dietary,
		&r.ValidFrom, &validTo,
	)
	if err != nil {
		return nil, err
	}
	r.AnalyticalComposition = nullStringPtr(analytical)
	r.DietarySupplements = nullStringPtr(dietary)
	r.ValidFrom = r.ValidFrom.UTC()
	if validTo.Valid {
		t := validTo.Time.UTC()
		r.ValidTo = &t
	}
	return &r, nil
}

func collectRecords(rows *sql.Rows) ([]model.ScrapRecord, error) {
	defer rows.Close() //nolint:errcheck

	var records []model.ScrapRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: records iterate")
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan text")
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: texts iterate")
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func ptrNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
