package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
    file_path            TEXT PRIMARY KEY,
    session_id           TEXT NOT NULL,
    project              TEXT NOT NULL,
    is_subagent          INTEGER NOT NULL DEFAULT 0,
    start_time           TEXT,
    end_time             TEXT,
    user_messages        INTEGER NOT NULL DEFAULT 0,
    api_calls            INTEGER NOT NULL DEFAULT 0,
    compactions          INTEGER NOT NULL DEFAULT 0,
    parse_errors         INTEGER NOT NULL DEFAULT 0,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL,
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_tickets (
    file_path            TEXT NOT NULL REFERENCES files(file_path) ON DELETE CASCADE,
    ticket               TEXT NOT NULL,
    input_tokens         INTEGER NOT NULL,
    output_tokens        INTEGER NOT NULL,
    cache_creation       INTEGER NOT NULL,
    cache_read           INTEGER NOT NULL,
    reasoning_tokens     INTEGER NOT NULL,
    api_calls            INTEGER NOT NULL,
    estimated_cost       TEXT NOT NULL,
    sessions             TEXT NOT NULL,
    PRIMARY KEY (file_path, ticket)
);

CREATE TABLE IF NOT EXISTS kv (
    key                  TEXT PRIMARY KEY,
    value                BLOB NOT NULL,
    stored_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key                  TEXT PRIMARY KEY,
    value                TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_tickets_ticket ON file_tickets(ticket);
`
