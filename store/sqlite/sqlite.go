/*
Package sqlite provides the SQLite-backed implementation of every
persistence interface in the system.

PURPOSE:
  One Store struct persists farmers, milk sessions, feed purchases,
  bills, and the per-farmer running carry-forward balance. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  billing.Store: milk/feed reads, bill writes, carry-forward balance
  plus the CRUD surface the API layer uses for farmers, milk logs, and
  feed purchases.

KEY TABLES:
  farmers:          registry, farmer_id globally unique
  milk_sessions:    immutable collection records (insert/delete only)
  feed_purchases:   feed credits, farmer-global
  bills:            settlement records; seq AUTOINCREMENT breaks
                    created_at ties for "most recent bill"
  farmer_balances:  running carry-forward, written in the same SQL
                    transaction as every bill write

ATOMICITY:
  SaveBill and UpdateBillPayment wrap the bill write and the
  farmer_balances upsert in one transaction. A failure leaves neither
  behind.

DECIMALS:
  Money and liters are stored as TEXT via decimal.String() - REAL
  columns would reintroduce the float drift the engine exists to avoid.

CONCURRENCY:
  sync.RWMutex plus WAL mode, same discipline as any single-writer
  SQLite deployment.

USAGE:
  store, err := sqlite.New("./data/dairy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := billing.NewEngine(store, logger)

SEE ALSO:
  - billing/store.go: interface definitions
  - billing/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/shreyasbagave/Dairy/billing"
	"github.com/shreyasbagave/Dairy/coop"
)

// dateLayout stores day-granular dates; timestamps use RFC3339.
const dateLayout = "2006-01-02"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Farmer registry. farmer_id is globally unique: ids are printed on
	-- collection cards, so one id must never resolve to two farmers.
	CREATE TABLE IF NOT EXISTS farmers (
		farmer_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT NOT NULL,
		bank_account_no TEXT NOT NULL,
		bank_ifsc TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_farmers_owner ON farmers(owner_id);

	-- Milk sessions (insert/delete only, never updated)
	CREATE TABLE IF NOT EXISTS milk_sessions (
		log_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		farmer_id TEXT NOT NULL,
		date TEXT NOT NULL,
		session TEXT NOT NULL,
		liters TEXT NOT NULL,
		fat_percent TEXT NOT NULL,
		rate_per_liter TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: period aggregation for billing
	CREATE INDEX IF NOT EXISTS idx_milk_owner_farmer_date
		ON milk_sessions(owner_id, farmer_id, date);
	CREATE INDEX IF NOT EXISTS idx_milk_farmer_date
		ON milk_sessions(farmer_id, date DESC);

	-- Feed purchases (farmer-global, no owner column)
	CREATE TABLE IF NOT EXISTS feed_purchases (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feed_farmer
		ON feed_purchases(farmer_id, date DESC);

	-- Bills. seq is the deterministic tie-break for bills created at
	-- the same timestamp.
	CREATE TABLE IF NOT EXISTS bills (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		bill_id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		farmer_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		morning_liters TEXT NOT NULL,
		morning_amount TEXT NOT NULL,
		evening_liters TEXT NOT NULL,
		evening_amount TEXT NOT NULL,
		milk_total_liters TEXT NOT NULL,
		milk_total_amount TEXT NOT NULL,
		feed_deducted_this_cycle TEXT NOT NULL,
		remaining_feed_balance_after TEXT NOT NULL,
		previous_carry_forward TEXT NOT NULL,
		net_payable TEXT NOT NULL,
		actual_paid_amount TEXT NOT NULL,
		adjustment TEXT NOT NULL,
		new_carry_forward_balance TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bills_farmer_created
		ON bills(farmer_id, created_at DESC, seq DESC);

	-- Running carry-forward, maintained transactionally with bills
	CREATE TABLE IF NOT EXISTS farmer_balances (
		farmer_id TEXT PRIMARY KEY,
		carry_forward TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// FARMERS
// =============================================================================

// SaveFarmer registers a farmer. A taken farmer_id (any owner) returns
// coop.ErrDuplicateFarmer.
func (s *Store) SaveFarmer(ctx context.Context, f coop.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO farmers
		(farmer_id, owner_id, name, phone, address, bank_account_no, bank_ifsc, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FarmerID, f.OwnerID, f.Name, f.Phone, f.Address,
		f.Bank.AccountNo, f.Bank.IFSC,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return coop.ErrDuplicateFarmer
		}
		return fmt.Errorf("failed to save farmer: %w", err)
	}
	return nil
}

// GetFarmer returns one farmer scoped to its owner.
func (s *Store) GetFarmer(ctx context.Context, ownerID, farmerID string) (*coop.Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT farmer_id, owner_id, name, phone, address, bank_account_no, bank_ifsc
		FROM farmers WHERE farmer_id = ? AND owner_id = ?`,
		farmerID, ownerID,
	)

	var f coop.Farmer
	err := row.Scan(&f.FarmerID, &f.OwnerID, &f.Name, &f.Phone, &f.Address,
		&f.Bank.AccountNo, &f.Bank.IFSC)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coop.ErrFarmerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get farmer: %w", err)
	}
	return &f, nil
}

// ListFarmers returns all farmers registered under an owner.
func (s *Store) ListFarmers(ctx context.Context, ownerID string) ([]coop.Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT farmer_id, owner_id, name, phone, address, bank_account_no, bank_ifsc
		FROM farmers WHERE owner_id = ? ORDER BY farmer_id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list farmers: %w", err)
	}
	defer rows.Close()

	var farmers []coop.Farmer
	for rows.Next() {
		var f coop.Farmer
		if err := rows.Scan(&f.FarmerID, &f.OwnerID, &f.Name, &f.Phone, &f.Address,
			&f.Bank.AccountNo, &f.Bank.IFSC); err != nil {
			return nil, fmt.Errorf("failed to scan farmer: %w", err)
		}
		farmers = append(farmers, f)
	}
	return farmers, rows.Err()
}

// UpdateFarmer updates a farmer's registration fields in place.
func (s *Store) UpdateFarmer(ctx context.Context, f coop.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE farmers
		SET name = ?, phone = ?, address = ?, bank_account_no = ?, bank_ifsc = ?
		WHERE farmer_id = ? AND owner_id = ?`,
		f.Name, f.Phone, f.Address, f.Bank.AccountNo, f.Bank.IFSC,
		f.FarmerID, f.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update farmer: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return coop.ErrFarmerNotFound
	}
	return nil
}

// DeleteFarmer removes a farmer and the milk sessions the owner recorded
// for them, returning how many sessions went with the farmer. Feed
// purchases and bills stay: they are the farmer's financial history.
func (s *Store) DeleteFarmer(ctx context.Context, ownerID, farmerID string) (milkDeleted int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM milk_sessions WHERE farmer_id = ? AND owner_id = ?`,
		farmerID, ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete milk sessions: %w", err)
	}
	milkDeleted, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM farmers WHERE farmer_id = ? AND owner_id = ?`,
		farmerID, ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete farmer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, coop.ErrFarmerNotFound
	}

	return milkDeleted, tx.Commit()
}

// =============================================================================
// MILK SESSIONS
// =============================================================================

// AddMilkSession stores one collection record.
func (s *Store) AddMilkSession(ctx context.Context, m coop.MilkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO milk_sessions
		(log_id, owner_id, farmer_id, date, session, liters, fat_percent, rate_per_liter, total_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.LogID, m.OwnerID, m.FarmerID,
		m.Date.Format(dateLayout), string(m.Session),
		m.Liters.String(), m.FatPercent.String(), m.RatePerLiter.String(), m.TotalCost.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add milk session: %w", err)
	}
	return nil
}

// DeleteMilkSession removes a log if the owner recorded it, returning
// the deleted record.
func (s *Store) DeleteMilkSession(ctx context.Context, ownerID, logID string) (*coop.MilkSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT log_id, owner_id, farmer_id, date, session, liters, fat_percent, rate_per_liter, total_cost
		FROM milk_sessions WHERE log_id = ? AND owner_id = ?`,
		logID, ownerID,
	)
	m, err := scanMilkSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coop.ErrMilkLogNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM milk_sessions WHERE log_id = ? AND owner_id = ?`,
		logID, ownerID,
	); err != nil {
		return nil, fmt.Errorf("failed to delete milk session: %w", err)
	}
	return &m, tx.Commit()
}

// FilterMilkSessions lists sessions matching a coop.MilkFilter, newest
// date first with Morning before Evening within a day.
func (s *Store) FilterMilkSessions(ctx context.Context, f coop.MilkFilter) ([]coop.MilkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT log_id, owner_id, farmer_id, date, session, liters, fat_percent, rate_per_liter, total_cost
		FROM milk_sessions WHERE 1=1`
	var args []any

	if f.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, f.OwnerID)
	}
	if f.FarmerID != "" {
		query += " AND farmer_id = ?"
		args = append(args, f.FarmerID)
	}
	if f.Session != "" {
		query += " AND session = ?"
		args = append(args, string(f.Session))
	}
	if f.Date != nil {
		query += " AND date = ?"
		args = append(args, coop.DateOnly(*f.Date).Format(dateLayout))
	}
	if f.Month != nil {
		query += " AND strftime('%Y-%m', date) = ?"
		args = append(args, f.Month.UTC().Format("2006-01"))
	}
	if f.Section != "" && f.Section != coop.SectionAll {
		lo, hi := f.Section.DayBounds()
		query += " AND CAST(strftime('%d', date) AS INTEGER) >= ?"
		args = append(args, lo)
		if hi != 0 {
			query += " AND CAST(strftime('%d', date) AS INTEGER) <= ?"
			args = append(args, hi)
		}
	}

	query += " ORDER BY date DESC, session ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter milk sessions: %w", err)
	}
	defer rows.Close()
	return collectMilkSessions(rows)
}

// MilkSessionsInRange implements billing.MilkSource: the sessions the
// aggregator sums for one bill, inclusive day bounds.
func (s *Store) MilkSessionsInRange(ctx context.Context, ownerID, farmerID string, start, end time.Time) ([]coop.MilkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, owner_id, farmer_id, date, session, liters, fat_percent, rate_per_liter, total_cost
		FROM milk_sessions
		WHERE owner_id = ? AND farmer_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, session ASC`,
		ownerID, farmerID,
		coop.DateOnly(start).Format(dateLayout), coop.DateOnly(end).Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query milk sessions: %w", err)
	}
	defer rows.Close()
	return collectMilkSessions(rows)
}

// =============================================================================
// FEED PURCHASES
// =============================================================================

// AddFeedPurchase stores a feed credit.
func (s *Store) AddFeedPurchase(ctx context.Context, p coop.FeedPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_purchases (id, farmer_id, date, quantity, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.FarmerID, coop.DateOnly(p.Date).Format(dateLayout),
		p.Quantity.String(), p.Price.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add feed purchase: %w", err)
	}
	return nil
}

// UpdateFeedPurchase edits a purchase's date, quantity, and price.
func (s *Store) UpdateFeedPurchase(ctx context.Context, p coop.FeedPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE feed_purchases SET date = ?, quantity = ?, price = ? WHERE id = ?`,
		coop.DateOnly(p.Date).Format(dateLayout), p.Quantity.String(), p.Price.String(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feed purchase: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return coop.ErrFeedPurchaseNotFound
	}
	return nil
}

// DeleteFeedPurchase removes a purchase.
func (s *Store) DeleteFeedPurchase(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM feed_purchases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feed purchase: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return coop.ErrFeedPurchaseNotFound
	}
	return nil
}

// ListFeedPurchases returns every purchase, newest first.
func (s *Store) ListFeedPurchases(ctx context.Context) ([]coop.FeedPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryFeedPurchases(ctx, `
		SELECT id, farmer_id, date, quantity, price, created_at
		FROM feed_purchases ORDER BY date DESC, created_at DESC`)
}

// FeedPurchasesByFarmer implements billing.FeedSource and the per-farmer
// listing, newest first.
func (s *Store) FeedPurchasesByFarmer(ctx context.Context, farmerID string) ([]coop.FeedPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryFeedPurchases(ctx, `
		SELECT id, farmer_id, date, quantity, price, created_at
		FROM feed_purchases WHERE farmer_id = ?
		ORDER BY date DESC, created_at DESC`, farmerID)
}

func (s *Store) queryFeedPurchases(ctx context.Context, query string, args ...any) ([]coop.FeedPurchase, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed purchases: %w", err)
	}
	defer rows.Close()

	var purchases []coop.FeedPurchase
	for rows.Next() {
		var (
			p                    coop.FeedPurchase
			date, qty, price, at string
		)
		if err := rows.Scan(&p.ID, &p.FarmerID, &date, &qty, &price, &at); err != nil {
			return nil, fmt.Errorf("failed to scan feed purchase: %w", err)
		}
		p.Date, _ = time.Parse(dateLayout, date)
		p.Quantity = mustDecimal(qty)
		p.Price = mustDecimal(price)
		p.CreatedAt, _ = time.Parse(time.RFC3339, at)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// =============================================================================
// BILLS (billing.BillStore)
// =============================================================================

const billColumns = `seq, bill_id, owner_id, farmer_id, period_start, period_end,
	morning_liters, morning_amount, evening_liters, evening_amount,
	milk_total_liters, milk_total_amount,
	feed_deducted_this_cycle, remaining_feed_balance_after,
	previous_carry_forward, net_payable, actual_paid_amount, adjustment,
	new_carry_forward_balance, status, created_at`

// SaveBill inserts a bill and sets the farmer's running carry-forward in
// one transaction. Assigns bill.Seq.
func (s *Store) SaveBill(ctx context.Context, bill *billing.Bill, newCarryForward decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bills
		(bill_id, owner_id, farmer_id, period_start, period_end,
		 morning_liters, morning_amount, evening_liters, evening_amount,
		 milk_total_liters, milk_total_amount,
		 feed_deducted_this_cycle, remaining_feed_balance_after,
		 previous_carry_forward, net_payable, actual_paid_amount, adjustment,
		 new_carry_forward_balance, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.BillID, bill.OwnerID, bill.FarmerID,
		bill.PeriodStart.Format(dateLayout), bill.PeriodEnd.Format(dateLayout),
		bill.MorningLiters.String(), bill.MorningAmount.String(),
		bill.EveningLiters.String(), bill.EveningAmount.String(),
		bill.MilkLiters.String(), bill.MilkAmount.String(),
		bill.FeedDeducted.String(), bill.RemainingFeedAfter.String(),
		bill.PreviousCarryForward.String(), bill.NetPayable.String(),
		bill.ActualPaid.String(), bill.Adjustment.String(),
		bill.NewCarryForward.String(), string(bill.Status),
		bill.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save bill: %w", err)
	}
	bill.Seq, _ = res.LastInsertId()

	if err := upsertBalance(ctx, tx, bill.FarmerID, newCarryForward); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateBillPayment overwrites the reconciliation fields and applies
// carryDelta to the running balance, atomically. Snapshot columns are
// not in the UPDATE.
func (s *Store) UpdateBillPayment(ctx context.Context, bill *billing.Bill, carryDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The balance is read (and, for pre-balance-table data, seeded from
	// the newest bill with the same query the carry-forward resolver
	// uses) before the UPDATE touches new_carry_forward_balance.
	var current decimal.Decimal
	var cur string
	row := tx.QueryRowContext(ctx,
		`SELECT carry_forward FROM farmer_balances WHERE farmer_id = ?`, bill.FarmerID)
	switch err := row.Scan(&cur); {
	case errors.Is(err, sql.ErrNoRows):
		fallback := tx.QueryRowContext(ctx, `
			SELECT new_carry_forward_balance FROM bills
			WHERE farmer_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT 1`, bill.FarmerID)
		switch err := fallback.Scan(&cur); {
		case errors.Is(err, sql.ErrNoRows):
			current = decimal.Zero
		case err != nil:
			return fmt.Errorf("failed to read newest bill balance: %w", err)
		default:
			current = mustDecimal(cur)
		}
	case err != nil:
		return fmt.Errorf("failed to read balance: %w", err)
	default:
		current = mustDecimal(cur)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bills
		SET actual_paid_amount = ?, adjustment = ?, new_carry_forward_balance = ?, status = ?
		WHERE bill_id = ?`,
		bill.ActualPaid.String(), bill.Adjustment.String(),
		bill.NewCarryForward.String(), string(bill.Status),
		bill.BillID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrBillNotFound
	}

	if err := upsertBalance(ctx, tx, bill.FarmerID, current.Add(carryDelta)); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertBalance(ctx context.Context, tx *sql.Tx, farmerID string, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO farmer_balances (farmer_id, carry_forward, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(farmer_id) DO UPDATE SET carry_forward = excluded.carry_forward, updated_at = excluded.updated_at`,
		farmerID, amount.String(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

// BillByID returns one bill or billing.ErrBillNotFound.
func (s *Store) BillByID(ctx context.Context, billID string) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE bill_id = ?`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, billing.ErrBillNotFound
	}
	bill, err := scanBill(rows)
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// BillsByFarmer returns the farmer's history newest first; seq breaks
// created_at ties deterministically.
func (s *Store) BillsByFarmer(ctx context.Context, farmerID string) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE farmer_id = ?
		 ORDER BY created_at DESC, seq DESC`, farmerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []billing.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// DeleteBill removes a bill. The running balance is deliberately not
// adjusted: the farmer's carry-forward reflects what actually happened,
// deleted paperwork or not.
func (s *Store) DeleteBill(ctx context.Context, billID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM bills WHERE bill_id = ?`, billID)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

// CarryForward reads the farmer's running balance.
func (s *Store) CarryForward(ctx context.Context, farmerID string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cur string
	err := s.db.QueryRowContext(ctx,
		`SELECT carry_forward FROM farmer_balances WHERE farmer_id = ?`, farmerID,
	).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read balance: %w", err)
	}
	return mustDecimal(cur), true, nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMilkSession(row rowScanner) (coop.MilkSession, error) {
	var (
		m                       coop.MilkSession
		date, session           string
		liters, fat, rate, cost string
	)
	err := row.Scan(&m.LogID, &m.OwnerID, &m.FarmerID, &date, &session,
		&liters, &fat, &rate, &cost)
	if err != nil {
		return m, err
	}
	m.Date, _ = time.Parse(dateLayout, date)
	m.Session = coop.Session(session)
	m.Liters = mustDecimal(liters)
	m.FatPercent = mustDecimal(fat)
	m.RatePerLiter = mustDecimal(rate)
	m.TotalCost = mustDecimal(cost)
	return m, nil
}

func collectMilkSessions(rows *sql.Rows) ([]coop.MilkSession, error) {
	var sessions []coop.MilkSession
	for rows.Next() {
		m, err := scanMilkSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milk session: %w", err)
		}
		sessions = append(sessions, m)
	}
	return sessions, rows.Err()
}

func scanBill(rows *sql.Rows) (billing.Bill, error) {
	var (
		b                      billing.Bill
		periodStart, periodEnd string
		morningL, morningA     string
		eveningL, eveningA     string
		milkL, milkA           string
		feedDed, feedAfter     string
		prevCarry, netPay      string
		paid, adj, newCarry    string
		status, createdAt      string
	)
	err := rows.Scan(&b.Seq, &b.BillID, &b.OwnerID, &b.FarmerID,
		&periodStart, &periodEnd,
		&morningL, &morningA, &eveningL, &eveningA,
		&milkL, &milkA,
		&feedDed, &feedAfter,
		&prevCarry, &netPay, &paid, &adj, &newCarry,
		&status, &createdAt)
	if err != nil {
		return b, fmt.Errorf("failed to scan bill: %w", err)
	}
	b.PeriodStart, _ = time.Parse(dateLayout, periodStart)
	b.PeriodEnd, _ = time.Parse(dateLayout, periodEnd)
	b.MorningLiters = mustDecimal(morningL)
	b.MorningAmount = mustDecimal(morningA)
	b.EveningLiters = mustDecimal(eveningL)
	b.EveningAmount = mustDecimal(eveningA)
	b.MilkLiters = mustDecimal(milkL)
	b.MilkAmount = mustDecimal(milkA)
	b.FeedDeducted = mustDecimal(feedDed)
	b.RemainingFeedAfter = mustDecimal(feedAfter)
	b.PreviousCarryForward = mustDecimal(prevCarry)
	b.NetPayable = mustDecimal(netPay)
	b.ActualPaid = mustDecimal(paid)
	b.Adjustment = mustDecimal(adj)
	b.NewCarryForward = mustDecimal(newCarry)
	b.Status = billing.Status(status)
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return b, nil
}

// Helper functions

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
