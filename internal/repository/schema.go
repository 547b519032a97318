package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the design knowledge tables. Vectors are stored as REAL[]
// so the brute-force searcher needs no extension; the pgvector searcher casts
// them on the fly.
const Schema = `
CREATE TABLE IF NOT EXISTS services (
	id      BIGSERIAL PRIMARY KEY,
	slug    TEXT NOT NULL UNIQUE,
	name    TEXT NOT NULL,
	summary TEXT
);

CREATE TABLE IF NOT EXISTS flows (
	id              BIGSERIAL PRIMARY KEY,
	service_id      BIGINT REFERENCES services(id),
	slug            TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	goal            TEXT,
	notes           TEXT,
	mermaid_diagram TEXT
);

CREATE TABLE IF NOT EXISTS steps (
	id              BIGSERIAL PRIMARY KEY,
	service_id      BIGINT REFERENCES services(id),
	flow_id         BIGINT REFERENCES flows(id),
	slug            TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	purpose         TEXT,
	user_actions    TEXT,
	data_inputs     TEXT,
	data_outputs    TEXT,
	conditions      TEXT,
	ui_summary      TEXT,
	notes           TEXT,
	mermaid_node_id TEXT
);

CREATE TABLE IF NOT EXISTS transitions (
	id           BIGSERIAL PRIMARY KEY,
	flow_id      BIGINT REFERENCES flows(id),
	from_step_id BIGINT NOT NULL REFERENCES steps(id),
	to_step_id   BIGINT NOT NULL REFERENCES steps(id),
	trigger      TEXT,
	condition    TEXT
);

CREATE TABLE IF NOT EXISTS ui_components (
	id           BIGSERIAL PRIMARY KEY,
	key          TEXT NOT NULL UNIQUE,
	type         TEXT,
	name         TEXT NOT NULL,
	description  TEXT,
	usage_notes  TEXT,
	process_code TEXT
);

CREATE TABLE IF NOT EXISTS step_components (
	id           BIGSERIAL PRIMARY KEY,
	step_id      BIGINT NOT NULL REFERENCES steps(id),
	component_id BIGINT NOT NULL REFERENCES ui_components(id),
	role         TEXT
);

CREATE TABLE IF NOT EXISTS documents (
	id         BIGSERIAL PRIMARY KEY,
	service_id BIGINT REFERENCES services(id),
	flow_id    BIGINT REFERENCES flows(id),
	doc_type   TEXT NOT NULL,
	title      TEXT,
	body       TEXT
);

CREATE TABLE IF NOT EXISTS embeddings (
	id           BIGSERIAL PRIMARY KEY,
	source_type  TEXT NOT NULL,
	source_id    BIGINT NOT NULL,
	service_id   BIGINT,
	flow_id      BIGINT,
	step_id      BIGINT,
	content_type TEXT NOT NULL,
	content      TEXT NOT NULL,
	embedding    REAL[] NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_type, source_id, content_type)
);

CREATE INDEX IF NOT EXISTS embeddings_content_type_idx ON embeddings (content_type);
`

// Migrate applies Schema. It is safe to run on every start.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
