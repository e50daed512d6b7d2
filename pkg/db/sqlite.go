package db

import (
	"strings"

	"gorm.io/gorm"
)

// RegisterSQLiteCallbacks strips row-locking clauses SQLite does not understand.
// SQLite serializes writers, so the lock is implied by the transaction itself.
func RegisterSQLiteCallbacks(conn *gorm.DB) error {
	if err := conn.Callback().Query().Before("gorm:query").Register("sqlite:strip_for_update", stripForUpdate); err != nil {
		return err
	}
	if err := conn.Callback().Row().Before("gorm:row").Register("sqlite:strip_for_update_row", stripForUpdate); err != nil {
		return err
	}
	return conn.Callback().Raw().Before("gorm:raw").Register("sqlite:strip_for_update_raw", stripForUpdate)
}

func stripForUpdate(d *gorm.DB) {
	sql := d.Statement.SQL.String()
	if !strings.Contains(sql, "FOR UPDATE") {
		return
	}
	sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
	sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
	d.Statement.SQL.Reset()
	d.Statement.SQL.WriteString(sql)
}
