package store

// schemaVersion is stored in PRAGMA user_version. A cache written under any
// other version is dropped and rebuilt.
const schemaVersion = 2

const dropSQL = `
DROP TABLE IF EXISTS log_file_models;
DROP TABLE IF EXISTS log_files;
`

const schemaSQL = `
CREATE TABLE IF NOT EXISTS log_files (
    file_path            TEXT PRIMARY KEY,
    log_date             TEXT NOT NULL,
    lines                INTEGER NOT NULL,
    parse_errors         INTEGER NOT NULL,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL,
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS log_file_models (
    file_path            TEXT NOT NULL REFERENCES log_files(file_path) ON DELETE CASCADE,
    model                TEXT NOT NULL,
    prompt_tokens        INTEGER NOT NULL,
    completion_tokens    INTEGER NOT NULL,
    total_tokens         INTEGER NOT NULL,
    unsplit_tokens       INTEGER NOT NULL DEFAULT 0,
    requests             INTEGER NOT NULL,
    PRIMARY KEY (file_path, model)
);

CREATE INDEX IF NOT EXISTS idx_log_files_date ON log_files(log_date);
`
