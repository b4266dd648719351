package persistence

// schemaDDL creates the durable schema, using a lowered fillfactor on
// the order table the same way quantcup's db.go does for a table that
// takes heavy in-place UPDATEs (filled/status on every partial fill).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS account (
	id            bigserial PRIMARY KEY,
	username      varchar(15) UNIQUE NOT NULL,
	password      text NOT NULL,
	register_time timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS markets (
	symbol       varchar(10) PRIMARY KEY,
	name         text NOT NULL,
	total_buys   bigint NOT NULL DEFAULT 0,
	total_sells  bigint NOT NULL DEFAULT 0,
	filled_buys  bigint NOT NULL DEFAULT 0,
	filled_sells bigint NOT NULL DEFAULT 0,
	latest_price double precision
);

CREATE TABLE IF NOT EXISTS orders (
	order_id     bigint PRIMARY KEY,
	symbol       varchar(10) NOT NULL REFERENCES markets(symbol),
	action       smallint NOT NULL,
	quantity     bigint NOT NULL,
	filled       bigint NOT NULL DEFAULT 0,
	price        double precision NOT NULL,
	user_id      bigint NOT NULL REFERENCES account(id),
	status       smallint NOT NULL DEFAULT 0,
	time_placed  timestamptz NOT NULL,
	time_updated timestamptz NOT NULL
) WITH (fillfactor = 70);

CREATE TABLE IF NOT EXISTS pending_orders (
	order_id bigint PRIMARY KEY REFERENCES orders(order_id)
);

CREATE TABLE IF NOT EXISTS executed_trades (
	symbol         varchar(10) NOT NULL,
	action         smallint NOT NULL,
	price          double precision NOT NULL,
	filled_oid     bigint NOT NULL REFERENCES orders(order_id),
	filled_uid     bigint NOT NULL REFERENCES account(id),
	filler_oid     bigint NOT NULL REFERENCES orders(order_id),
	filler_uid     bigint NOT NULL REFERENCES account(id),
	exchanged      bigint NOT NULL,
	execution_time timestamptz NOT NULL,
	PRIMARY KEY (filled_oid, filler_oid)
);

CREATE TABLE IF NOT EXISTS exchange_stats (
	key          smallint PRIMARY KEY,
	total_orders bigint NOT NULL DEFAULT 0
);

INSERT INTO exchange_stats (key, total_orders) VALUES (1, 0)
ON CONFLICT (key) DO NOTHING;
`
