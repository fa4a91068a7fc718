package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/luckforge/casino-core/internal/games"
)

// DB wraps the SQLite connection. Monetary columns are TEXT holding exact
// decimal strings; arithmetic happens in Go with shopspring/decimal, never
// in SQL, so settlements accumulate no floating-point drift.
type DB struct {
	sql *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Open opens (or creates) the database at path. Use ":memory:" in tests.
func Open(path string, log *zap.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets reads proceed during settlement writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, multierr.Append(fmt.Errorf("enable WAL: %w", err), db.Close())
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, multierr.Append(fmt.Errorf("enable foreign keys: %w", err), db.Close())
	}

	return &DB{sql: db, log: log, now: time.Now}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Migrate creates the schema. Idempotent.
func (d *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			balance TEXT NOT NULL DEFAULT '0',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			amount TEXT NOT NULL,
			balance_before TEXT NOT NULL,
			balance_after TEXT NOT NULL,
			reference TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS game_records (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			game_type TEXT NOT NULL,
			bet_amount TEXT NOT NULL,
			payout TEXT NOT NULL,
			profit TEXT NOT NULL,
			game_data TEXT NOT NULL,
			server_seed TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			nonce INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS house_stats (
			date TEXT NOT NULL,
			game_type TEXT NOT NULL,
			total_games INTEGER NOT NULL DEFAULT 0,
			total_wagered TEXT NOT NULL DEFAULT '0',
			total_payout TEXT NOT NULL DEFAULT '0',
			house_profit TEXT NOT NULL DEFAULT '0',
			PRIMARY KEY (date, game_type)
		)`,
		`CREATE TABLE IF NOT EXISTS tower_sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			difficulty TEXT NOT NULL,
			bet_amount TEXT NOT NULL,
			level INTEGER NOT NULL DEFAULT 0,
			multiplier REAL NOT NULL DEFAULT 1.0,
			server_seed TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			nonce_base INTEGER NOT NULL,
			revision INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_game_records_user ON game_records(user_id, created_at DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tower_active_user ON tower_sessions(user_id) WHERE status = 'active'`,
	}

	var errs error
	for _, m := range migrations {
		if _, err := d.sql.Exec(m); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("migration failed: %w", err))
		}
	}
	return errs
}

// isBusy reports whether err is SQLite lock contention worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs fn, retrying briefly on SQLite lock contention. Everything
// else fails through immediately.
func (d *DB) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(10*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// CreateUser inserts a user with an opening balance.
func (d *DB) CreateUser(ctx context.Context, username string, balance decimal.Decimal) (User, error) {
	createdAt := d.now()
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO users (username, balance, created_at) VALUES (?, ?, ?)`,
		username, balance.String(), createdAt.UnixMilli(),
	)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("create user id: %w", err)
	}
	return User{ID: id, Username: username, Balance: balance, CreatedAt: createdAt}, nil
}

// GetUser loads a user by id.
func (d *DB) GetUser(ctx context.Context, id int64) (User, error) {
	var (
		u          User
		balanceStr string
		createdMs  int64
	)
	err := d.sql.QueryRowContext(ctx,
		`SELECT id, username, balance, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &balanceStr, &createdMs)
	if err == sql.ErrNoRows {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	u.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return User{}, fmt.Errorf("user %d balance %q: %w", id, balanceStr, err)
	}
	u.CreatedAt = time.UnixMilli(createdMs)
	return u, nil
}

// Settle applies one instant wager atomically: balance check, balance
// write, ledger entries, outcome record, daily aggregate. Either every
// write lands or none does.
func (d *DB) Settle(ctx context.Context, s Settlement) (decimal.Decimal, error) {
	return d.settle(ctx, s, false)
}

// SettleEscrowed settles a wager whose stake was already debited by
// EscrowBet. The stake leaves the balance at wager time, so unlike Settle
// this path performs no balance check and never fails for lack of funds;
// it only credits the payout and writes the outcome record and daily
// aggregate. Terminal tower and crash settlements go through here.
func (d *DB) SettleEscrowed(ctx context.Context, s Settlement) (decimal.Decimal, error) {
	return d.settle(ctx, s, true)
}

func (d *DB) settle(ctx context.Context, s Settlement, escrowed bool) (decimal.Decimal, error) {
	if s.BetAmount.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("%w: settlement bet must be positive", games.ErrInvalidInput)
	}
	if s.Payout.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: settlement payout cannot be negative", games.ErrInvalidInput)
	}

	var newBalance decimal.Decimal
	err := d.withRetry(ctx, func(ctx context.Context) error {
		var err error
		newBalance, err = d.settleTx(ctx, s, escrowed)
		return err
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	d.log.Info("wager settled",
		zap.Int64("user_id", s.UserID),
		zap.String("game", string(s.Game)),
		zap.String("bet", s.BetAmount.String()),
		zap.String("payout", s.Payout.String()),
	)
	return newBalance, nil
}

// EscrowBet debits the stake for a session or shared-round wager at the
// moment it is placed. The debit and its ledger entry land atomically, so a
// running session's stake can never be spent twice. The matching
// SettleEscrowed (or RefundBet) completes the wager later.
func (d *DB) EscrowBet(ctx context.Context, userID int64, game games.GameType, bet decimal.Decimal) (decimal.Decimal, error) {
	if bet.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("%w: escrow bet must be positive", games.ErrInvalidInput)
	}

	var newBalance decimal.Decimal
	err := d.withRetry(ctx, func(ctx context.Context) error {
		var err error
		newBalance, err = d.adjustBalanceTx(ctx, userID, bet.Neg(), "bet", fmt.Sprintf("%s_bet", game), true)
		return err
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	d.log.Info("bet escrowed",
		zap.Int64("user_id", userID),
		zap.String("game", string(game)),
		zap.String("bet", bet.String()),
	)
	return newBalance, nil
}

// RefundBet returns an escrowed stake, balancing the bet entry EscrowBet
// wrote. Used when the wager never completes, for example a crash position
// replaced by a later bet in the same round.
func (d *DB) RefundBet(ctx context.Context, userID int64, game games.GameType, bet decimal.Decimal) (decimal.Decimal, error) {
	if bet.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("%w: refund must be positive", games.ErrInvalidInput)
	}

	var newBalance decimal.Decimal
	err := d.withRetry(ctx, func(ctx context.Context) error {
		var err error
		newBalance, err = d.adjustBalanceTx(ctx, userID, bet, "refund", fmt.Sprintf("%s_refund", game), false)
		return err
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	d.log.Info("bet refunded",
		zap.Int64("user_id", userID),
		zap.String("game", string(game)),
		zap.String("bet", bet.String()),
	)
	return newBalance, nil
}

// adjustBalanceTx moves delta onto the user's balance and writes the
// matching ledger entry in one transaction. requireCover rejects a debit
// the balance cannot cover.
func (d *DB) adjustBalanceTx(ctx context.Context, userID int64, delta decimal.Decimal, txType, reference string, requireCover bool) (_ decimal.Decimal, err error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("begin balance adjust: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreTxDone(tx.Rollback()))
		}
	}()

	var balanceStr string
	err = tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&balanceStr)
	if err == sql.ErrNoRows {
		return decimal.Decimal{}, ErrUserNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("read balance: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("stored balance %q: %w", balanceStr, err)
	}

	newBalance := balance.Add(delta)
	if requireCover && newBalance.IsNegative() {
		return decimal.Decimal{}, ErrInsufficientBalance
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET balance = ? WHERE id = ?`, newBalance.String(), userID,
	); err != nil {
		return decimal.Decimal{}, fmt.Errorf("update balance: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, balance_before, balance_after, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), userID, txType, delta.String(),
		balance.String(), newBalance.String(), reference, d.now().UnixMilli(),
	); err != nil {
		return decimal.Decimal{}, fmt.Errorf("write %s entry: %w", txType, err)
	}

	if err = tx.Commit(); err != nil {
		return decimal.Decimal{}, fmt.Errorf("commit balance adjust: %w", err)
	}
	return newBalance, nil
}

func (d *DB) settleTx(ctx context.Context, s Settlement, escrowed bool) (_ decimal.Decimal, err error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("begin settlement: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreTxDone(tx.Rollback()))
		}
	}()

	var balanceStr string
	err = tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, s.UserID).Scan(&balanceStr)
	if err == sql.ErrNoRows {
		return decimal.Decimal{}, ErrUserNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("read balance: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("stored balance %q: %w", balanceStr, err)
	}

	// An escrowed stake already left the balance through EscrowBet, which
	// also wrote the bet entry; only the payout moves here.
	afterBet := balance
	if !escrowed {
		if balance.LessThan(s.BetAmount) {
			return decimal.Decimal{}, ErrInsufficientBalance
		}
		afterBet = balance.Sub(s.BetAmount)
	}
	newBalance := afterBet.Add(s.Payout)
	nowMs := d.now().UnixMilli()

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET balance = ? WHERE id = ?`, newBalance.String(), s.UserID,
	); err != nil {
		return decimal.Decimal{}, fmt.Errorf("update balance: %w", err)
	}

	if !escrowed {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (id, user_id, type, amount, balance_before, balance_after, reference, created_at)
			 VALUES (?, ?, 'bet', ?, ?, ?, ?, ?)`,
			uuid.New().String(), s.UserID, s.BetAmount.Neg().String(),
			balance.String(), afterBet.String(), fmt.Sprintf("%s_bet", s.Game), nowMs,
		); err != nil {
			return decimal.Decimal{}, fmt.Errorf("write bet entry: %w", err)
		}
	}

	if s.Payout.IsPositive() {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (id, user_id, type, amount, balance_before, balance_after, reference, created_at)
			 VALUES (?, ?, 'win', ?, ?, ?, ?, ?)`,
			uuid.New().String(), s.UserID, s.Payout.String(),
			afterBet.String(), newBalance.String(), fmt.Sprintf("%s_win", s.Game), nowMs,
		); err != nil {
			return decimal.Decimal{}, fmt.Errorf("write win entry: %w", err)
		}
	}

	gameData, err := json.Marshal(s.GameData)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("encode game data: %w", err)
	}
	profit := s.Payout.Sub(s.BetAmount)
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO game_records (id, user_id, game_type, bet_amount, payout, profit, game_data, server_seed, client_seed, nonce, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), s.UserID, string(s.Game),
		s.BetAmount.String(), s.Payout.String(), profit.String(),
		string(gameData), s.Triple.Server, s.Triple.Client, s.Triple.Nonce, nowMs,
	); err != nil {
		return decimal.Decimal{}, fmt.Errorf("write game record: %w", err)
	}

	if err = d.bumpHouseStats(ctx, tx, s); err != nil {
		return decimal.Decimal{}, err
	}

	if err = tx.Commit(); err != nil {
		return decimal.Decimal{}, fmt.Errorf("commit settlement: %w", err)
	}
	return newBalance, nil
}

// bumpHouseStats upserts the daily per-game aggregate inside the settlement
// transaction. The read-add-write happens in Go because the amounts are
// decimal strings SQL cannot sum.
func (d *DB) bumpHouseStats(ctx context.Context, tx *sql.Tx, s Settlement) error {
	date := d.now().UTC().Format("2006-01-02")

	var totalGames int64
	var wageredStr, payoutStr, profitStr string
	var wagered, payout, profit decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT total_games, total_wagered, total_payout, house_profit
		 FROM house_stats WHERE date = ? AND game_type = ?`, date, string(s.Game),
	).Scan(&totalGames, &wageredStr, &payoutStr, &profitStr)
	switch {
	case err == sql.ErrNoRows:
		// first settlement of the day for this game
	case err != nil:
		return fmt.Errorf("read house stats: %w", err)
	default:
		if wagered, err = decimal.NewFromString(wageredStr); err != nil {
			return fmt.Errorf("stored wagered %q: %w", wageredStr, err)
		}
		if payout, err = decimal.NewFromString(payoutStr); err != nil {
			return fmt.Errorf("stored payout %q: %w", payoutStr, err)
		}
		if profit, err = decimal.NewFromString(profitStr); err != nil {
			return fmt.Errorf("stored profit %q: %w", profitStr, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO house_stats (date, game_type, total_games, total_wagered, total_payout, house_profit)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date, game_type) DO UPDATE SET
			total_games = excluded.total_games,
			total_wagered = excluded.total_wagered,
			total_payout = excluded.total_payout,
			house_profit = excluded.house_profit`,
		date, string(s.Game),
		totalGames+1,
		wagered.Add(s.BetAmount).String(),
		payout.Add(s.Payout).String(),
		profit.Add(s.BetAmount.Sub(s.Payout)).String(),
	)
	if err != nil {
		return fmt.Errorf("upsert house stats: %w", err)
	}
	return nil
}

func ignoreTxDone(err error) error {
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// DailyStats reads one day's aggregate for a game.
func (d *DB) DailyStats(ctx context.Context, day time.Time, game games.GameType) (HouseStats, error) {
	date := day.UTC().Format("2006-01-02")
	hs := HouseStats{GameType: game}
	var wageredStr, payoutStr, profitStr string
	err := d.sql.QueryRowContext(ctx,
		`SELECT total_games, total_wagered, total_payout, house_profit
		 FROM house_stats WHERE date = ? AND game_type = ?`, date, string(game),
	).Scan(&hs.TotalGames, &wageredStr, &payoutStr, &profitStr)
	if err == sql.ErrNoRows {
		hs.TotalWagered, hs.TotalPayout, hs.HouseProfit = decimal.Zero, decimal.Zero, decimal.Zero
		hs.Date, _ = time.Parse("2006-01-02", date)
		return hs, nil
	}
	if err != nil {
		return HouseStats{}, fmt.Errorf("read daily stats: %w", err)
	}
	if hs.TotalWagered, err = decimal.NewFromString(wageredStr); err != nil {
		return HouseStats{}, err
	}
	if hs.TotalPayout, err = decimal.NewFromString(payoutStr); err != nil {
		return HouseStats{}, err
	}
	if hs.HouseProfit, err = decimal.NewFromString(profitStr); err != nil {
		return HouseStats{}, err
	}
	hs.Date, _ = time.Parse("2006-01-02", date)
	return hs, nil
}

// UserTransactions lists a user's ledger entries, newest first.
func (d *DB) UserTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, user_id, type, amount, balance_before, balance_after, reference, created_at
		 FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var amountStr, beforeStr, afterStr string
		var createdMs int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &amountStr, &beforeStr, &afterStr, &t.Reference, &createdMs); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, err
		}
		if t.BalanceBefore, err = decimal.NewFromString(beforeStr); err != nil {
			return nil, err
		}
		if t.BalanceAfter, err = decimal.NewFromString(afterStr); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, t)
	}
	return out, rows.Err()
}

// UserGameHistory lists a user's settled outcomes, newest first.
func (d *DB) UserGameHistory(ctx context.Context, userID int64, limit, offset int) ([]GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, user_id, game_type, bet_amount, payout, profit, game_data, server_seed, client_seed, nonce, created_at
		 FROM game_records WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list game history: %w", err)
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		var r GameRecord
		var gameType string
		var betStr, payoutStr, profitStr string
		var createdMs int64
		if err := rows.Scan(&r.ID, &r.UserID, &gameType, &betStr, &payoutStr, &profitStr,
			&r.GameData, &r.ServerSeed, &r.ClientSeed, &r.Nonce, &createdMs); err != nil {
			return nil, err
		}
		r.GameType = games.GameType(gameType)
		if r.BetAmount, err = decimal.NewFromString(betStr); err != nil {
			return nil, err
		}
		if r.Payout, err = decimal.NewFromString(payoutStr); err != nil {
			return nil, err
		}
		if r.Profit, err = decimal.NewFromString(profitStr); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateTowerSession persists a fresh dragon tower session. A partial
// unique index keeps at most one active session per user.
func (d *DB) CreateTowerSession(ctx context.Context, s TowerSession) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO tower_sessions (id, user_id, difficulty, bet_amount, level, multiplier,
			server_seed, client_seed, nonce_base, revision, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, string(s.Difficulty), s.BetAmount.String(), s.Level, s.Multiplier,
		s.Seeds.Server, s.Seeds.Client, s.NonceBase, s.Revision, string(s.Status), d.now().UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_tower_active_user") || strings.Contains(err.Error(), "UNIQUE") {
			return ErrSessionExists
		}
		return fmt.Errorf("create tower session: %w", err)
	}
	return nil
}

// GetTowerSession loads a session owned by the given user.
func (d *DB) GetTowerSession(ctx context.Context, id string, userID int64) (TowerSession, error) {
	var (
		s          TowerSession
		difficulty string
		betStr     string
		status     string
		createdMs  int64
	)
	err := d.sql.QueryRowContext(ctx,
		`SELECT id, user_id, difficulty, bet_amount, level, multiplier,
			server_seed, client_seed, nonce_base, revision, status, created_at
		 FROM tower_sessions WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&s.ID, &s.UserID, &difficulty, &betStr, &s.Level, &s.Multiplier,
		&s.Seeds.Server, &s.Seeds.Client, &s.NonceBase, &s.Revision, &status, &createdMs)
	if err == sql.ErrNoRows {
		return TowerSession{}, ErrSessionNotFound
	}
	if err != nil {
		return TowerSession{}, fmt.Errorf("get tower session: %w", err)
	}
	s.Difficulty = games.TowerDifficulty(difficulty)
	s.Status = TowerSessionStatus(status)
	if s.BetAmount, err = decimal.NewFromString(betStr); err != nil {
		return TowerSession{}, fmt.Errorf("session %s bet %q: %w", id, betStr, err)
	}
	s.CreatedAt = time.UnixMilli(createdMs)
	return s, nil
}

// AdvanceTowerSession moves an active session to the next level. The update
// only lands if the caller still holds the revision it read; a concurrent
// advance bumps the revision first and this one fails with
// ErrSessionConflict.
func (d *DB) AdvanceTowerSession(ctx context.Context, id string, fromRevision int64, level int, multiplier float64) error {
	return d.casTowerUpdate(ctx,
		`UPDATE tower_sessions SET level = ?, multiplier = ?, revision = revision + 1
		 WHERE id = ? AND revision = ? AND status = 'active'`,
		level, multiplier, id, fromRevision)
}

// CloseTowerSession terminates a session (busted, collected, or completed),
// with the same compare-and-swap guard as AdvanceTowerSession.
func (d *DB) CloseTowerSession(ctx context.Context, id string, fromRevision int64, status TowerSessionStatus) error {
	return d.casTowerUpdate(ctx,
		`UPDATE tower_sessions SET status = ?, revision = revision + 1
		 WHERE id = ? AND revision = ? AND status = 'active'`,
		string(status), id, fromRevision)
}

func (d *DB) casTowerUpdate(ctx context.Context, query string, args ...any) error {
	return d.withRetry(ctx, func(ctx context.Context) error {
		res, err := d.sql.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("tower session update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("tower session update: %w", err)
		}
		if n == 0 {
			return ErrSessionConflict
		}
		return nil
	})
}
