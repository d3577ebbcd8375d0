package sqlite

// Schema creates the three structures the store maintains together: the
// primary record table and the two secondary index tables. Each index table
// is a key-value bucket map: the timestamp index is keyed by a fixed-width
// unix-nano string (lexicographic order == chronological order), the scope
// index by "attribute:value". Bucket values are JSON-encoded id arrays.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    id      TEXT PRIMARY KEY,
    payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS timestamp_index (
    bucket TEXT PRIMARY KEY,
    ids    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scope_index (
    bucket TEXT PRIMARY KEY,
    ids    TEXT NOT NULL
);
`
