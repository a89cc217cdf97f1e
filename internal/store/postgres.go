package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-cli/internal/db"
	"github.com/sells-group/shelf-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pgQueries
	pool    db.Pool
	closeFn func()
}

type pgQueries struct {
	q db.Querier
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{q: pool}, pool: pool, closeFn: closeFn}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS stores (
	id      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name    TEXT NOT NULL UNIQUE,
	website TEXT
);

CREATE TABLE IF NOT EXISTS manufacturers (
	id      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name    TEXT NOT NULL UNIQUE,
	website TEXT
);

CREATE TABLE IF NOT EXISTS products (
	ean             BIGINT PRIMARY KEY CHECK (ean > 0),
	manufacturer_id TEXT REFERENCES manufacturers(id) ON DELETE SET NULL,
	is_followed     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS prices (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_ean BIGINT NOT NULL REFERENCES products(ean),
	store_id    TEXT NOT NULL REFERENCES stores(id),
	value       DOUBLE PRECISION NOT NULL,
	observed_on DATE NOT NULL,
	UNIQUE (product_ean, store_id, observed_on)
);

CREATE TABLE IF NOT EXISTS scrap_records (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_ean            BIGINT NOT NULL REFERENCES products(ean),
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
	valid_from             TIMESTAMPTZ NOT NULL,
	valid_to               TIMESTAMPTZ,
	is_valid               BOOLEAN GENERATED ALWAYS AS (valid_to IS NULL) STORED
);

CREATE TABLE IF NOT EXISTS analytical_components (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	record_id TEXT NOT NULL REFERENCES scrap_records(id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	value     DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS dietary_components (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	record_id     TEXT NOT NULL REFERENCES scrap_records(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	value         DOUBLE PRECISION,
	unit          TEXT,
	chemical_form TEXT
);

CREATE TABLE IF NOT EXISTS run_locks (
	name        TEXT PRIMARY KEY,
	holder      TEXT NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_scrap_records_live ON scrap_records(product_ean, store_id) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_scrap_records_product ON scrap_records(product_ean);
CREATE INDEX IF NOT EXISTS idx_prices_product ON prices(product_ean);
CREATE INDEX IF NOT EXISTS idx_analytical_components_record ON analytical_components(record_id);
CREATE INDEX IF NOT EXISTS idx_dietary_components_record ON dietary_components(record_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgQueries{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

func (s *PostgresStore) AcquireRunLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	holder := uuid.New().String()
	now := time.Now().UTC()

	// A single statement: an expired row is taken over, a live one is left alone.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO run_locks (name, holder, acquired_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE SET holder = $2, acquired_at = $3, expires_at = $4
		 WHERE run_locks.expires_at <= $3`,
		name, holder, now, now.Add(ttl),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: acquire run lock %s", name)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrLocked, "postgres: lock %s", name)
	}

	return func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `DELETE FROM run_locks WHERE name = $1 AND holder = $2`, name, holder)
		return eris.Wrapf(err, "postgres: release run lock %s", name)
	}, nil
}

// --- identity ---

// getOrCreateAttempts bounds the insert-or-select statements below. Under
// READ COMMITTED a row committed by a concurrent insert of the same key is
// not in the first statement's snapshot, so that statement returns no row;
// the next statement sees it.
const getOrCreateAttempts = 2

// retryNoRows runs scan until it returns something other than pgx.ErrNoRows.
func retryNoRows(scan func() error) error {
	var err error
	for range getOrCreateAttempts {
		if err = scan(); !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	return err
}

func (s *pgQueries) GetOrCreateStore(ctx context.Context, name string) (*model.Store, error) {
	var st model.Store
	err := retryNoRows(func() error {
		return s.q.QueryRow(ctx,
			`WITH ins AS (
				INSERT INTO stores (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING
				RETURNING id, name, website
			)
			SELECT id, name, website FROM ins
			UNION ALL
			SELECT id, name, website FROM stores WHERE name = $2
			LIMIT 1`,
			uuid.New().String(), name,
		).Scan(&st.ID, &st.Name, &st.Website)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get or create store %s", name)
	}
	return &st, nil
}

func (s *pgQueries) GetStoreByName(ctx context.Context, name string) (*model.Store, error) {
	var st model.Store
	err := s.q.QueryRow(ctx,
		`SELECT id, name, website FROM stores WHERE name = $1`, name,
	).Scan(&st.ID, &st.Name, &st.Website)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: store %s", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get store %s", name)
	}
	return &st, nil
}

func (s *pgQueries) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.q.Query(ctx, `SELECT id, name, website FROM stores ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		var st model.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Website); err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		stores = append(stores, st)
	}
	return stores, eris.Wrap(rows.Err(), "postgres: list stores iterate")
}

func (s *pgQueries) GetOrCreateManufacturer(ctx context.Context, name string) (*model.Manufacturer, error) {
	var m model.Manufacturer
	err := retryNoRows(func() error {
		return s.q.QueryRow(ctx,
			`WITH ins AS (
				INSERT INTO manufacturers (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING
				RETURNING id, name, website
			)
			SELECT id, name, website FROM ins
			UNION ALL
			SELECT id, name, website FROM manufacturers WHERE name = $2
			LIMIT 1`,
			uuid.New().String(), name,
		).Scan(&m.ID, &m.Name, &m.Website)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get or create manufacturer %s", name)
	}
	return &m, nil
}

func (s *pgQueries) GetOrCreateProduct(ctx context.Context, ean int64, manufacturerID string) (*model.Product, error) {
	var p model.Product
	var mfr *string
	err := retryNoRows(func() error {
		return s.q.QueryRow(ctx,
			`WITH ins AS (
				INSERT INTO products (ean, manufacturer_id, is_followed) VALUES ($1, $2, TRUE) ON CONFLICT (ean) DO NOTHING
				RETURNING ean, manufacturer_id, is_followed
			)
			SELECT ean, manufacturer_id, is_followed FROM ins
			UNION ALL
			SELECT ean, manufacturer_id, is_followed FROM products WHERE ean = $1
			LIMIT 1`,
			ean, nullIfEmpty(manufacturerID),
		).Scan(&p.EAN, &mfr, &p.IsFollowed)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get or create product %d", ean)
	}
	if mfr != nil {
		p.ManufacturerID = *mfr
	}
	return &p, nil
}

func (s *pgQueries) DeleteManufacturer(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM manufacturers WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete manufacturer %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "manufacturer %s", id)
	}
	return nil
}

// --- scrap records ---

func (s *pgQueries) GetLiveRecord(ctx context.Context, ean int64, storeID string) (*model.ScrapRecord, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+recordColumns+` FROM scrap_records
		 WHERE product_ean = $1 AND store_id = $2 AND valid_to IS NULL`,
		ean, storeID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get live record %d", ean)
	}
	records, err := collectPgRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *pgQueries) InsertRecord(ctx context.Context, rec *model.ScrapRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO scrap_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.ProductEAN, rec.StoreID, rec.ManufacturerID, rec.ProductName, rec.Weight,
		rec.Flavour, rec.FoodType, rec.AgeGroup, rec.Composition,
		rec.AnalyticalComposition, rec.DietarySupplements,
		rec.ValidFrom.UTC(), rec.ValidTo,
	)
	return eris.Wrapf(err, "postgres: insert record for %d", rec.ProductEAN)
}

func (s *pgQueries) SupersedeRecord(ctx context.Context, id string, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE scrap_records SET valid_to = $1 WHERE id = $2 AND valid_to IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: supersede record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "live record %s", id)
	}
	return nil
}

func (s *pgQueries) ExtendRecordValidity(ctx context.Context, id string, from time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE scrap_records SET valid_from = $1 WHERE id = $2 AND valid_to IS NULL`,
		from.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: extend record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "live record %s", id)
	}
	return nil
}

func (s *pgQueries) ListLiveRecords(ctx context.Context) ([]model.ScrapRecord, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+recordColumns+` FROM scrap_records WHERE valid_to IS NULL ORDER BY product_ean, store_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list live records")
	}
	return collectPgRecords(rows)
}

func (s *pgQueries) ListRecordHistory(ctx context.Context, ean int64) ([]model.ScrapRecord, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+recordColumns+` FROM scrap_records WHERE product_ean = $1 ORDER BY store_id, valid_from`,
		ean,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list record history %d", ean)
	}
	return collectPgRecords(rows)
}

// --- prices ---

func (s *pgQueries) InsertPrice(ctx context.Context, p *model.PriceObservation) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Date = model.DateOnly(p.Date)
	tag, err := s.q.Exec(ctx,
		`INSERT INTO prices (id, product_ean, store_id, value, observed_on) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (product_ean, store_id, observed_on) DO NOTHING`,
		p.ID, p.ProductEAN, p.StoreID, p.Value, p.Date,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert price for %d", p.ProductEAN)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgQueries) ListPrices(ctx context.Context, ean int64) ([]model.PriceObservation, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, product_ean, store_id, value, observed_on FROM prices WHERE product_ean = $1 ORDER BY observed_on, store_id`,
		ean,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list prices %d", ean)
	}
	defer rows.Close()

	var prices []model.PriceObservation
	for rows.Next() {
		var p model.PriceObservation
		if err := rows.Scan(&p.ID, &p.ProductEAN, &p.StoreID, &p.Value, &p.Date); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price")
		}
		p.Date = model.DateOnly(p.Date)
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "postgres: list prices iterate")
}

// --- products ---

func (s *pgQueries) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.q.Query(ctx, `SELECT ean, manufacturer_id, is_followed FROM products ORDER BY ean`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		var mfr *string
		if err := rows.Scan(&p.EAN, &mfr, &p.IsFollowed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		if mfr != nil {
			p.ManufacturerID = *mfr
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *pgQueries) SetFollowed(ctx context.Context, ean int64, followed bool) error {
	tag, err := s.q.Exec(ctx, `UPDATE products SET is_followed = $1 WHERE ean = $2`, followed, ean)
	if err != nil {
		return eris.Wrapf(err, "postgres: set followed %d", ean)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "product %d", ean)
	}
	return nil
}

// --- extraction ---

func (s *pgQueries) PendingTexts(ctx context.Context, kind model.ComponentKind) ([]string, error) {
	textCol, table, ok := kindTables(kind)
	if !ok {
		return nil, eris.Errorf("postgres: unknown component kind %q", kind)
	}
	rows, err := s.q.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT r.%[1]s FROM scrap_records r
		 JOIN products p ON p.ean = r.product_ean
		 WHERE p.is_followed AND r.valid_to IS NULL
		   AND r.%[1]s IS NOT NULL AND r.%[1]s <> ''
		   AND NOT EXISTS (SELECT 1 FROM %[2]s c WHERE c.record_id = r.id)
		 ORDER BY 1`, textCol, table))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: pending %s texts", kind)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "postgres: scan text")
		}
		texts = append(texts, t)
	}
	return texts, eris.Wrap(rows.Err(), "postgres: texts iterate")
}

func (s *pgQueries) RecordsAwaitingExtraction(ctx context.Context, kind model.ComponentKind, text string) ([]model.ScrapRecord, error) {
	textCol, table, ok := kindTables(kind)
	if !ok {
		return nil, eris.Errorf("postgres: unknown component kind %q", kind)
	}
	rows, err := s.q.Query(ctx, fmt.Sprintf(
		`SELECT `+recordColumns+` FROM scrap_records r
		 WHERE r.valid_to IS NULL AND r.%s = $1
		   AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.record_id = r.id)
		 ORDER BY r.product_ean, r.store_id`, textCol, table), text)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: records awaiting %s extraction", kind)
	}
	return collectPgRecords(rows)
}

func (s *pgQueries) InsertAnalyticalComponents(ctx context.Context, comps []model.AnalyticalComponent) error {
	rows := make([][]any, 0, len(comps))
	for i := range comps {
		c := &comps[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		rows = append(rows, []any{c.ID, c.RecordID, c.Name, c.Value})
	}
	_, err := db.CopyFrom(ctx, s.q, "analytical_components", []string{"id", "record_id", "name", "value"}, rows)
	return eris.Wrap(err, "postgres: insert analytical components")
}

func (s *pgQueries) InsertDietaryComponents(ctx context.Context, comps []model.DietaryComponent) error {
	rows := make([][]any, 0, len(comps))
	for i := range comps {
		c := &comps[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		rows = append(rows, []any{c.ID, c.RecordID, c.Name, c.Value, c.Unit, c.ChemicalForm})
	}
	_, err := db.CopyFrom(ctx, s.q, "dietary_components",
		[]string{"id", "record_id", "name", "value", "unit", "chemical_form"}, rows)
	return eris.Wrap(err, "postgres: insert dietary components")
}

func (s *pgQueries) ListAnalyticalComponents(ctx context.Context, recordID string) ([]model.AnalyticalComponent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, record_id, name, value FROM analytical_components WHERE record_id = $1 ORDER BY name`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list analytical components %s", recordID)
	}
	defer rows.Close()

	var comps []model.AnalyticalComponent
	for rows.Next() {
		var c model.AnalyticalComponent
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Name, &c.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analytical component")
		}
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "postgres: list analytical components iterate")
}

func (s *pgQueries) ListDietaryComponents(ctx context.Context, recordID string) ([]model.DietaryComponent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, record_id, name, value, unit, chemical_form FROM dietary_components WHERE record_id = $1 ORDER BY name`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list dietary components %s", recordID)
	}
	defer rows.Close()

	var comps []model.DietaryComponent
	for rows.Next() {
		var c model.DietaryComponent
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Name, &c.Value, &c.Unit, &c.ChemicalForm); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dietary component")
		}
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "postgres: list dietary components iterate")
}

func collectPgRecords(rows pgx.Rows) ([]model.ScrapRecord, error) {
	defer rows.Close()

	var records []model.ScrapRecord
	for rows.Next() {
		var r model.ScrapRecord
		err := rows.Scan(
			&r.ID, &r.ProductEAN, &r.StoreID, &r.ManufacturerID, &r.ProductName, &r.Weight,
			&r.Flavour, &r.FoodType, &r.AgeGroup, &r.Composition,
			&r.AnalyticalComposition, &r.DietarySupplements,
			&r.ValidFrom, &r.ValidTo,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r.ValidFrom = r.ValidFrom.UTC()
		if r.ValidTo != nil {
			t := r.ValidTo.UTC()
			r.ValidTo = &t
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: records iterate")
}
