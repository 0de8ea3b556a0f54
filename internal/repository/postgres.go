package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
		id            TEXT PRIMARY KEY,
		seller_id     TEXT NOT NULL,
		title         TEXT NOT NULL,
		description   TEXT NOT NULL,
		image_urls    JSONB NOT NULL DEFAULT '[]',
		start_price   BIGINT NOT NULL CHECK (start_price > 0),
		current_price BIGINT NOT NULL,
		bid_step      BIGINT NOT NULL CHECK (bid_step > 0),
		buyout_price  BIGINT,
		start_at      TIMESTAMPTZ NOT NULL,
		end_at        TIMESTAMPTZ NOT NULL,
		status        TEXT NOT NULL,
		winner_id     TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		CHECK (end_at > start_at),
		CHECK (current_price >= start_price)
	)`,
	`CREATE INDEX IF NOT EXISTS auctions_status_idx ON auctions (status)`,
	`CREATE TABLE IF NOT EXISTS bids (
		id         TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions(id),
		bidder_id  TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bids_auction_created_idx ON bids (auction_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS bids_bidder_idx ON bids (bidder_id)`,
}

const auctionColumns = `id, seller_id, title, description, image_urls, start_price, current_price, bid_step,
	buyout_price, start_at, end_at, status, winner_id, created_at, updated_at`

// PostgresRepo implements AuctionDB and BidLedger on PostgreSQL through the pgx driver
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo connects to dsn and creates the schema if it does not exist
func NewPostgresRepo(ctx context.Context, dsn string) (*PostgresRepo, error) {
	const op = "repository.NewPostgresRepo"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: migrate: %w", op, err)
		}
	}

	return &PostgresRepo{db: db}, nil
}

// Close closes the underlying connection pool
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrStorage, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a         model.Auction
		images    []byte
		buyout    sql.NullInt64
		winner    sql.NullString
		status    string
		startAt   time.Time
		endAt     time.Time
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.Title, &a.Description, &images,
		&a.StartPrice, &a.CurrentPrice, &a.BidStep, &buyout,
		&startAt, &endAt, &status, &winner, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}

	if err := json.Unmarshal(images, &a.ImageURLs); err != nil {
		return model.Auction{}, fmt.Errorf("decode image urls: %w", err)
	}
	if buyout.Valid {
		v := buyout.Int64
		a.BuyoutPrice = &v
	}
	if winner.Valid {
		v := winner.String
		a.WinnerID = &v
	}
	a.Status = model.AuctionStatus(status)
	a.StartAt, a.EndAt = startAt.UTC(), endAt.UTC()
	a.CreatedAt, a.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
	return a, nil
}

func encodeImages(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	return string(b), err
}

func nullableInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// CreateAuction inserts a new auction
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	const op = "repository.postgres.CreateAuction"

	images, err := encodeImages(a.ImageURLs)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.AuctionID, a.SellerID, a.Title, a.Description, images,
		a.StartPrice, a.CurrentPrice, a.BidStep, nullableInt(a.BuyoutPrice),
		a.StartAt, a.EndAt, string(a.Status), nullableString(a.WinnerID), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w: duplicate id %s", op, biddingerrors.ErrStorage, a.AuctionID)
		}
		return storageErr(op, err)
	}
	return nil
}

// GetAuction returns one auction by id
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	const op = "repository.postgres.GetAuction"

	row := r.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, storageErr(op, err)
	}
	return a, nil
}

// UpdateAuction overwrites every mutable column of an auction
func (r *PostgresRepo) UpdateAuction(ctx context.Context, a model.Auction) error {
	const op = "repository.postgres.UpdateAuction"

	images, err := encodeImages(a.ImageURLs)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE auctions
		SET title = $2, description = $3, image_urls = $4, start_price = $5, current_price = $6,
		    bid_step = $7, buyout_price = $8, start_at = $9, end_at = $10, status = $11,
		    winner_id = $12, updated_at = $13
		WHERE id = $1`,
		a.AuctionID, a.Title, a.Description, images, a.StartPrice, a.CurrentPrice,
		a.BidStep, nullableInt(a.BuyoutPrice), a.StartAt, a.EndAt, string(a.Status),
		nullableString(a.WinnerID), a.UpdatedAt,
	)
	if err != nil {
		return storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	return nil
}

// likeEscaper makes a search term match literally inside an ILIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// ListAuctions returns one page of auctions, newest first
func (r *PostgresRepo) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	const op = "repository.postgres.ListAuctions"

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.SellerID != "" {
		where = append(where, "seller_id = "+arg(filter.SellerID))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := arg("%" + likeEscaper.Replace(q) + "%")
		where = append(where, "(title ILIKE "+p+" ESCAPE '\\' OR description ILIKE "+p+" ESCAPE '\\')")
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	query += " OFFSET " + arg(filter.Offset())

	return r.queryAuctions(ctx, op, query, args...)
}

// ListDue returns auctions whose start or end boundary has passed without a transition
func (r *PostgresRepo) ListDue(ctx context.Context, now time.Time) ([]model.Auction, error) {
	const op = "repository.postgres.ListDue"

	return r.queryAuctions(ctx, op, `SELECT `+auctionColumns+` FROM auctions
		WHERE (status = $1 AND start_at <= $3) OR (status = $2 AND end_at <= $3)
		ORDER BY id`,
		string(model.StatusScheduled), string(model.StatusRunning), now)
}

func (r *PostgresRepo) queryAuctions(ctx context.Context, op, query string, args ...any) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	auctions := make([]model.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return auctions, nil
}

// NextBoundary returns the closest upcoming start or end time of a live auction
func (r *PostgresRepo) NextBoundary(ctx context.Context, now time.Time) (time.Time, bool, error) {
	const op = "repository.postgres.NextBoundary"

	var next sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(CASE WHEN status = $1 AND start_at > $3 THEN start_at ELSE end_at END)
		FROM auctions
		WHERE status IN ($1, $2)`,
		string(model.StatusScheduled), string(model.StatusRunning), now,
	).Scan(&next)
	if err != nil {
		return time.Time{}, false, storageErr(op, err)
	}
	if !next.Valid {
		return time.Time{}, false, nil
	}
	return next.Time.UTC(), true, nil
}

// AppendBid records an accepted bid inside a transaction that locks the auction row
func (r *PostgresRepo) AppendBid(ctx context.Context, bid model.Bid) error {
	const op = "repository.postgres.AppendBid"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM auctions WHERE id = $1 FOR UPDATE`, bid.AuctionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return storageErr(op, err)
	}

	var (
		lastAmount sql.NullInt64
		lastAt     sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `SELECT MAX(amount), MAX(created_at) FROM bids WHERE auction_id = $1`,
		bid.AuctionID).Scan(&lastAmount, &lastAt)
	if err != nil {
		return storageErr(op, err)
	}
	if lastAmount.Valid && (bid.Amount < lastAmount.Int64 || !bid.CreatedAt.After(lastAt.Time)) {
		return fmt.Errorf("append bid for auction %s: %w: amount %d after %d",
			bid.AuctionID, biddingerrors.ErrOrderingViolation, bid.Amount, lastAmount.Int64)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		bid.BidID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt)
	if err != nil {
		return storageErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr(op, err)
	}
	return nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var b model.Bid
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// LatestBid returns the highest bid for an auction
func (r *PostgresRepo) LatestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	const op = "repository.postgres.LatestBid"

	row := r.db.QueryRowContext(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
		LIMIT 1`, auctionID)
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("latest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, storageErr(op, err)
	}
	return b, nil
}

// BidHistory returns a page of bids, newest first
func (r *PostgresRepo) BidHistory(ctx context.Context, auctionID string, limit, offset int) ([]model.Bid, error) {
	const op = "repository.postgres.BidHistory"

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, auctionID).Scan(&exists); err != nil {
		return nil, storageErr(op, err)
	}
	if !exists {
		return nil, fmt.Errorf("bid history for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	query := `SELECT id, auction_id, bidder_id, amount, created_at FROM bids
		WHERE auction_id = $1 ORDER BY created_at DESC OFFSET $2`
	args := []any{auctionID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return bids, nil
}

// GetAuctionIDsByBidder returns the auctions a user has bid on, in first-bid order
func (r *PostgresRepo) GetAuctionIDsByBidder(ctx context.Context, bidderID string) ([]string, error) {
	const op = "repository.postgres.GetAuctionIDsByBidder"

	rows, err := r.db.QueryContext(ctx, `
		SELECT auction_id FROM bids
		WHERE bidder_id = $1
		GROUP BY auction_id
		ORDER BY MIN(created_at)`, bidderID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}
	return ids, nil
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (r *PostgresRepo) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := map[string]string{"driver": "postgres"}

	if err := r.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	dbStats := r.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	return stats
}
