package config

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/godror/godror"
)

// OracleConfig holds Oracle database configuration
type OracleConfig struct {
	Host            string
	Port            string
	Service         string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Wallet configuration for Oracle Cloud (ADB)
	WalletPath string
	TNSAlias   string
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// DSN returns the godror connection string
func (c OracleConfig) DSN() string {
	params := []string{
		fmt.Sprintf(`user="%s"`, dsnEscaper.Replace(c.User)),
		fmt.Sprintf(`password="%s"`, dsnEscaper.Replace(c.Password)),
	}
	if c.WalletPath != "" && c.TNSAlias != "" {
		wallet := dsnEscaper.Replace(c.WalletPath)
		params = append(params,
			fmt.Sprintf(`connectString="%s"`, dsnEscaper.Replace(c.TNSAlias)),
			fmt.Sprintf(`configDir="%s"`, wallet),
			fmt.Sprintf(`walletLocation="%s"`, wallet),
		)
	} else {
		params = append(params, fmt.Sprintf(`connectString="%s:%s/%s"`, c.Host, c.Port, c.Service))
	}
	return strings.Join(params, " ")
}

// NewOracleDB opens the connection pool and pings it within ctx
func NewOracleDB(ctx context.Context, cfg OracleConfig) (*sql.DB, error) {
	db, err := sql.Open("godror", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
