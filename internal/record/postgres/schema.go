package postgres

// TableName is the table holding one row per migration name.
const TableName = "data_migrations"

// createSchemaSQL is the DDL for the data_migrations table.
const createSchemaSQL = `CREATE TABLE IF NOT EXISTS data_migrations (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL UNIQUE,
    version        TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    rollbackable   BOOLEAN NOT NULL DEFAULT FALSE,
    status         TEXT NOT NULL DEFAULT 'PENDING',
    executed_at    TIMESTAMPTZ,
    executed_by    TEXT NOT NULL DEFAULT '',
    environment    TEXT NOT NULL DEFAULT '',
    error_message  TEXT NOT NULL DEFAULT '',
    metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
    rolled_back_at TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS data_migrations_environment_status_idx
    ON data_migrations (environment, status)`

// selectColumns is shared by every read query so scanRecord stays in sync.
const selectColumns = `id, name, version, description, rollbackable, status,
    executed_at, executed_by, environment, error_message, metadata,
    rolled_back_at, created_at, updated_at`
