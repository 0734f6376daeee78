// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	volume_factor REAL NOT NULL,
	denied TEXT NOT NULL,
	reasons TEXT NOT NULL,
	checks TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_time ON evaluations(time);

CREATE TABLE IF NOT EXISTS stop_updates (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	ticket TEXT NOT NULL,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	strategy TEXT NOT NULL,
	previous_sl REAL NOT NULL,
	new_sl REAL NOT NULL,
	applied INTEGER NOT NULL,
	error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stop_updates_ticket ON stop_updates(ticket, time);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	instrument TEXT NOT NULL,
	units REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	peak REAL NOT NULL,
	drawdown_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
