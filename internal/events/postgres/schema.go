package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS auction_events (
	tx_hash TEXT NOT NULL,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	amount TEXT,
	commit_end BIGINT,
	reveal_end BIGINT,
	block_number BIGINT NOT NULL,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (tx_hash, kind, subject),
	CONSTRAINT kind_known CHECK (kind IN ('auction_created','bid_committed','bid_revealed','auction_settled')),
	CONSTRAINT block_number_nonneg CHECK (block_number >= 0),
	CONSTRAINT commit_end_nonneg CHECK (commit_end IS NULL OR commit_end >= 0),
	CONSTRAINT reveal_end_nonneg CHECK (reveal_end IS NULL OR reveal_end >= 0)
);

CREATE INDEX IF NOT EXISTS auction_events_block_idx ON auction_events (block_number);

CREATE TABLE IF NOT EXISTS indexer_cursor (
	id SMALLINT PRIMARY KEY,
	block_number BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT single_row CHECK (id = 1),
	CONSTRAINT cursor_nonneg CHECK (block_number >= 0)
);
`
