package store

const schema = `
-- Decks and cards are stored as JSON documents, mirroring the hosted
-- document database. Columns exist only for keys the store queries on.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    modified_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    data BLOB NOT NULL,
    modified_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck_id);

-- The durable mutation queue. The autoincrement id doubles as creation
-- order.
CREATE TABLE IF NOT EXISTS mutations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    payload BLOB,
    retries INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mutations_entity ON mutations(entity_id, type);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    updated_at DATETIME NOT NULL
);

-- Scalar state: last sync timestamps, last error, queue-changed marker.
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
