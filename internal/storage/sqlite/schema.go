package sqlite

const schema = `
-- Users table
CREATE TABLE IF NOT EXISTS users (
    user_id INTEGER PRIMARY KEY,
    timezone TEXT NOT NULL DEFAULT 'Asia/Almaty',
    language TEXT NOT NULL DEFAULT 'ru',
    settings TEXT NOT NULL DEFAULT '{}',
    onboarding_done INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Projects table
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(user_id),
    name TEXT NOT NULL CHECK(length(name) >= 1 AND length(name) <= 100),
    color TEXT NOT NULL DEFAULT '',
    emoji TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, name)
);

-- Items table
CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(user_id),
    type TEXT NOT NULL DEFAULT 'note'
        CHECK(type IN ('task','idea','note','resource','contact','event')),
    status TEXT NOT NULL DEFAULT 'inbox'
        CHECK(status IN ('processing','inbox','active','done','archived')),
    title TEXT NOT NULL DEFAULT '' CHECK(length(title) <= 500),
    content TEXT NOT NULL DEFAULT '',
    original_input TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    due_at DATETIME,
    due_at_raw TEXT NOT NULL DEFAULT '',
    remind_at DATETIME,
    priority TEXT NOT NULL DEFAULT ''
        CHECK(priority IN ('','high','medium','low')),
    project_id INTEGER REFERENCES projects(id),
    tags TEXT NOT NULL DEFAULT '[]',
    entities TEXT,
    recurrence TEXT,
    embedding BLOB,
    origin_user_name TEXT NOT NULL DEFAULT '',
    attachment_file_id TEXT NOT NULL DEFAULT '',
    attachment_type TEXT NOT NULL DEFAULT '',
    attachment_filename TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    -- done items must carry a completion timestamp
    CHECK ((status = 'done' AND completed_at IS NOT NULL) OR (status != 'done'))
);

-- Item links table (directed, deduplicated per pair)
CREATE TABLE IF NOT EXISTS item_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    related_item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    link_type TEXT NOT NULL DEFAULT 'related',
    reason TEXT NOT NULL DEFAULT '',
    confidence REAL,
    confirmed INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(item_id, related_item_id),
    CHECK (item_id != related_item_id)
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_items_user_status ON items(user_id, status);
CREATE INDEX IF NOT EXISTS idx_items_user_type ON items(user_id, type);
CREATE INDEX IF NOT EXISTS idx_items_user_project ON items(user_id, project_id);
CREATE INDEX IF NOT EXISTS idx_items_remind_at ON items(remind_at);
CREATE INDEX IF NOT EXISTS idx_items_due_at ON items(due_at);
CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_item_links_item ON item_links(item_id);
CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);

-- Full-text index over the lexical fields, kept in sync by triggers.
-- remove_diacritics 2 folds combining marks so Cyrillic text with stress
-- marks still matches.
CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
    title, content, original_input,
    content='items', content_rowid='id',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS items_fts_insert AFTER INSERT ON items BEGIN
    INSERT INTO items_fts(rowid, title, content, original_input)
    VALUES (new.id, new.title, new.content, new.original_input);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_delete AFTER DELETE ON items BEGIN
    INSERT INTO items_fts(items_fts, rowid, title, content, original_input)
    VALUES ('delete', old.id, old.title, old.content, old.original_input);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_update AFTER UPDATE OF title, content, original_input ON items BEGIN
    INSERT INTO items_fts(items_fts, rowid, title, content, original_input)
    VALUES ('delete', old.id, old.title, old.content, old.original_input);
    INSERT INTO items_fts(rowid, title, content, original_input)
    VALUES (new.id, new.title, new.content, new.original_input);
END;
`
