package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createSettlementFlowTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE settlement_flows (
		id TEXT PRIMARY KEY,
		holder_address TEXT NOT NULL,
		merchant_address TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		description TEXT,
		allow_fallback NUMERIC NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		plan TEXT,
		outcome TEXT,
		approval_tx_hash TEXT,
		swap_tx_hash TEXT,
		confirm_threshold TEXT,
		prior_balance TEXT,
		last_error_kind TEXT,
		last_error_detail TEXT,
		decided_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE settlement_flow_events (
		id TEXT PRIMARY KEY,
		flow_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		state TEXT NOT NULL,
		tx_hash TEXT,
		detail TEXT,
		created_at DATETIME
	);`)
}
