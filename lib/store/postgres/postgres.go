// Package postgres implements the interface for PostgreSQL.
package postgres

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/tarancss/stellarsvc/lib/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS ops (
	id      BIGSERIAL PRIMARY KEY,
	account TEXT NOT NULL,
	type    TEXT NOT NULL,
	asset   TEXT NOT NULL DEFAULT '',
	amount  TEXT NOT NULL DEFAULT '',
	dest    TEXT NOT NULL DEFAULT '',
	hash    TEXT NOT NULL DEFAULT '',
	status  TEXT NOT NULL,
	error   TEXT NOT NULL DEFAULT '',
	ts      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ops_account ON ops (account, ts);
CREATE TABLE IF NOT EXISTS issuer_meta (
	issuer  TEXT PRIMARY KEY,
	data    JSONB NOT NULL,
	updated BIGINT NOT NULL
);`

type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and creates the tables used
// by the service if missing.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("cannot create tables: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// AddOp saves an operation of account acc and returns its id as 8 big endian bytes.
func (p *Postgres) AddOp(o store.Op, acc string) ([]byte, error) {
	var id int64

	err := p.db.QueryRow(`INSERT INTO ops (account, type, asset, amount, dest, hash, status, error, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		acc, o.Type, o.Asset, o.Amount, o.To, o.Hash, o.Status, o.Error, o.TS).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("could not insert operation in db: %w", err)
	}

	return opID(id), nil
}

func opID(id int64) []byte {
	b := make([]byte, 8) //nolint:gomnd // int64
	binary.BigEndian.PutUint64(b, uint64(id))

	return b
}

// GetOps returns the operations of the accounts indicated in the acc slice, or of every account when empty.
func (p *Postgres) GetOps(acc []string) ([]store.AccountOps, error) {
	q := `SELECT id, account, type, asset, amount, dest, hash, status, error, ts FROM ops`
	args := []interface{}{}

	if len(acc) != 0 {
		q += ` WHERE account = ANY($1)`
		args = append(args, pq.Array(acc))
	}

	rows, err := p.db.Query(q+` ORDER BY account, ts, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("error getting operations: %w", err)
	}
	defer rows.Close()

	ops := []store.AccountOps{}

	for rows.Next() {
		var (
			id      int64
			account string
			o       store.Op
		)

		if err = rows.Scan(&id, &account, &o.Type, &o.Asset, &o.Amount, &o.To, &o.Hash, &o.Status, &o.Error,
			&o.TS); err != nil {
			return nil, fmt.Errorf("error reading operation: %w", err)
		}

		o.ID = opID(id)

		if len(ops) == 0 || ops[len(ops)-1].Account != account {
			ops = append(ops, store.AccountOps{Account: account})
		}

		ops[len(ops)-1].Ops = append(ops[len(ops)-1].Ops, o)
	}

	return ops, rows.Err()
}

// LoadMeta loads from db the meta data of the indicated asset issuer.
func (p *Postgres) LoadMeta(issuer string) (im store.IssuerMeta, err error) {
	var data []byte

	err = p.db.QueryRow(`SELECT data, updated FROM issuer_meta WHERE issuer = $1`, issuer).Scan(&data, &im.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return im, store.ErrDataNotFound
	}

	if err != nil {
		return im, err
	}

	err = json.Unmarshal(data, &im.Data)

	return
}

// SaveMeta saves to db the meta data of the indicated asset issuer.
func (p *Postgres) SaveMeta(issuer string, im store.IssuerMeta) error {
	data, err := json.Marshal(im.Data)
	if err != nil {
		return err
	}

	_, err = p.db.Exec(`INSERT INTO issuer_meta (issuer, data, updated) VALUES ($1, $2, $3)
		ON CONFLICT (issuer) DO UPDATE SET data = EXCLUDED.data, updated = EXCLUDED.updated`,
		issuer, data, im.Updated)

	return err
}
