package backup

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dev-tams/sqlbackup/internal/config"
)

// DSN renders conn as a go-sql-driver/mysql data source name.
func DSN(conn config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = conn.User
	mc.Passwd = conn.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	mc.DBName = conn.Name
	mc.Timeout = 10 * time.Second
	return mc.FormatDSN()
}

// Ping opens a connection and runs SELECT 1 against the configured database.
func Ping(ctx context.Context, conn config.DatabaseConfig) error {
	db, err := sql.Open("mysql", DSN(conn))
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer db.Close()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("query %s@%s:%d/%s: %w", conn.User, conn.Host, conn.Port, conn.Name, err)
	}
	return nil
}
