package enginestore

// SQL schema for the engine's three tables (spec.md §3.4): the raw capture
// table (nine columns, one-to-one with record.Record, "no enrichment
// breakout"), the geo lookup cache backing the rate-limited online geo
// analyzer, and the ETL watermark.

const schemaRaw = `
CREATE TABLE IF NOT EXISTS raw (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company_id TEXT NOT NULL,
    pixel_id TEXT NOT NULL,
    remote_address TEXT NOT NULL,
    request_path TEXT NOT NULL,
    query_string TEXT NOT NULL,
    headers_json TEXT NOT NULL,
    user_agent TEXT NOT NULL,
    referer TEXT NOT NULL,
    received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_received_at ON raw(received_at);
CREATE INDEX IF NOT EXISTS idx_raw_company ON raw(company_id);
`

const schemaGeoLookup = `
CREATE TABLE IF NOT EXISTS geo_lookup (
    ip_key TEXT PRIMARY KEY,
    country TEXT NOT NULL DEFAULT '',
    region TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    timezone TEXT NOT NULL DEFAULT '',
    looked_up_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_geo_lookup_time ON geo_lookup(looked_up_at);
`

const schemaWatermark = `
CREATE TABLE IF NOT EXISTS etl_watermark (
    name TEXT PRIMARY KEY,
    last_raw_id INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

var allSchemas = []string{schemaRaw, schemaGeoLookup, schemaWatermark, schemaMigrations}
