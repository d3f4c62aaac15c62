package sql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite" // file: DSNs are delegated to a registered sqlite driver
)

const ProviderKey = "sql"

const migrationsTable = "directory_migrations"

type Provider struct {
	PrimaryDSN        string `json:"primaryDsn"` // user:password@tcp(hostname:port)
	Database          string `json:"database"`
	SqlLite           bool   `json:"sqlLite"`
	primaryConnection *sql.DB
	afterUpdate       []func()
}

func FromJson(data []byte) (*Provider, error) {
	p := &Provider{}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Connect() error {
	if p.primaryConnection == nil {
		var err error
		if p.SqlLite {
			p.primaryConnection, err = sql.Open("libsql", p.PrimaryDSN)
		} else {
			p.primaryConnection, err = sql.Open("mysql", p.PrimaryDSN+"/"+p.Database+"?parseTime=true")
		}
		if err != nil {
			return fmt.Errorf("failed to open db %s", err)
		}
	}

	// Ping the database to ensure a successful connection
	return p.primaryConnection.Ping()
}

func (p *Provider) Close() error {
	var errs []error
	if p.primaryConnection != nil {
		errs = append(errs, p.primaryConnection.Close())
	}
	return errors.Join(errs...)
}

// Initialize connects and, for sqlite databases, applies any pending
// migrations. MySQL schemas are managed externally.
func (p *Provider) Initialize() error {
	if err := p.Connect(); err != nil {
		return err
	}
	if !p.SqlLite {
		return nil
	}

	var tblName string
	err := p.primaryConnection.
		QueryRow("SELECT tbl_name FROM sqlite_master WHERE type='table' AND name = '" + migrationsTable + "';").
		Scan(&tblName)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err = p.primaryConnection.Exec("create table " + migrationsTable + " (migration varchar(255) not null primary key, applied int not null)"); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	applied, err := p.appliedMigrations()
	if err != nil {
		return err
	}

	for _, query := range migrations() {
		if applied[query.key] {
			continue
		}
		if _, err = p.primaryConnection.Exec(query.query); err != nil {
			return err
		}
		if _, err = p.primaryConnection.Exec("INSERT INTO "+migrationsTable+" (migration, applied) VALUES (?, 1);", query.key); err != nil {
			return err
		}
	}

	return nil
}

func (p *Provider) appliedMigrations() (map[string]bool, error) {
	rows, err := p.primaryConnection.Query("SELECT migration, applied FROM " + migrationsTable + ";")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var migKey string
		var done int
		if err = rows.Scan(&migKey, &done); err != nil {
			return nil, err
		}
		applied[migKey] = done == 1
	}
	return applied, rows.Err()
}

// AfterUpdate registers a hook fired after every mutating call, for cache
// invalidation in embedding applications.
func (p *Provider) AfterUpdate(exec func()) error {
	p.afterUpdate = append(p.afterUpdate, exec)
	return nil
}

func (p *Provider) update() {
	for _, exec := range p.afterUpdate {
		exec()
	}
}
