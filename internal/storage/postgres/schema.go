// Package postgres provides a PostgreSQL RecordStore backend.
package postgres

// Schema creates the record table. Unlike the key-value backends, the scope
// and timestamp indices are real btree indexes over dedicated columns; the
// scope values are extracted from metadata at write time so the index
// contents always match the record's current metadata. The embedding is
// always stored in the binary column; when the pgvector extension is present
// an additional vector column is created for cosine-distance queries.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    id             TEXT PRIMARY KEY,
    content        TEXT NOT NULL,
    metadata       JSONB,
    context        JSONB,
    update_history JSONB,
    user_id        TEXT,
    session_id     TEXT,
    agent_id       TEXT,
    created_at     TIMESTAMPTZ NOT NULL,
    embedding      BYTEA
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON records (created_at);
CREATE INDEX IF NOT EXISTS idx_records_user_id    ON records (user_id)    WHERE user_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_records_session_id ON records (session_id) WHERE session_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_records_agent_id   ON records (agent_id)   WHERE agent_id IS NOT NULL;
`

// vectorColumnDDL is applied only when the pgvector extension is installed.
const vectorColumnDDL = `
ALTER TABLE records ADD COLUMN IF NOT EXISTS embedding_vec vector;
`
