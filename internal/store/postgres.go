package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
)

var storeTracer = otel.Tracer("restaurant.internal.store")

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists restaurants, tables, customers, bookings and chat logs.
type Postgres struct {
	pool pgxPool
}

// NewPostgres wraps a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &Postgres{pool: pool}
}

func newPostgresWithPool(pool pgxPool) *Postgres {
	if pool == nil {
		panic("store: pool required")
	}
	return &Postgres{pool: pool}
}

const bookingColumns = `id::text, restaurant_id::text, customer_id::text, COALESCE(table_id::text, ''),
	title, pax, status, notes, type, start_date_time, end_date_time`

// ListTables returns the restaurant's table inventory.
func (p *Postgres) ListTables(ctx context.Context, restaurantID string) ([]bookings.Table, error) {
	ctx, span := storeTracer.Start(ctx, "store.list_tables")
	defer span.End()

	rows, err := p.pool.Query(ctx, `
		SELECT id::text, table_number, capacity, location, is_movable, status
		FROM tables
		WHERE restaurant_id = $1
		ORDER BY table_number
	`, restaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list tables: %w", err)
	}
	defer rows.Close()

	var out []bookings.Table
	for rows.Next() {
		var t bookings.Table
		if err := rows.Scan(&t.ID, &t.TableNumber, &t.Capacity, &t.Location, &t.Movable, &t.Status); err != nil {
			return nil, fmt.Errorf("store: scan table: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tables: %w", err)
	}
	return out, nil
}

// GetTable resolves one table. Unknown or malformed ids map to ErrTableNotFound.
func (p *Postgres) GetTable(ctx context.Context, restaurantID, tableID string) (*bookings.Table, error) {
	if _, err := uuid.Parse(tableID); err != nil {
		return nil, bookings.ErrTableNotFound
	}
	var t bookings.Table
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, table_number, capacity, location, is_movable, status
		FROM tables
		WHERE restaurant_id = $1 AND id = $2
	`, restaurantID, tableID).Scan(&t.ID, &t.TableNumber, &t.Capacity, &t.Location, &t.Movable, &t.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookings.ErrTableNotFound
		}
		return nil, fmt.Errorf("store: get table: %w", err)
	}
	return &t, nil
}

// ListConfirmedReservations returns the restaurant's confirmed windows that
// have not ended yet.
func (p *Postgres) ListConfirmedReservations(ctx context.Context, restaurantID string) ([]bookings.Reservation, error) {
	ctx, span := storeTracer.Start(ctx, "store.list_reservations")
	defer span.End()

	rows, err := p.pool.Query(ctx, `
		SELECT id::text, COALESCE(table_id::text, ''), start_date_time, end_date_time
		FROM bookings
		WHERE restaurant_id = $1 AND status = 'confirmed' AND end_date_time > now()
		ORDER BY start_date_time
	`, restaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list reservations: %w", err)
	}
	defer rows.Close()

	var out []bookings.Reservation
	for rows.Next() {
		var r bookings.Reservation
		if err := rows.Scan(&r.BookingID, &r.TableID, &r.Window.Start, &r.Window.End); err != nil {
			return nil, fmt.Errorf("store: scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list reservations: %w", err)
	}
	return out, nil
}

// ListCustomerBookings returns every booking the customer holds in the restaurant.
func (p *Postgres) ListCustomerBookings(ctx context.Context, restaurantID, customerID string) ([]bookings.Booking, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE restaurant_id = $1 AND customer_id = $2
		ORDER BY start_date_time
	`, restaurantID, customerID)
	if err != nil {
		return nil, fmt.Errorf("store: list customer bookings: %w", err)
	}
	defer rows.Close()

	var out []bookings.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list customer bookings: %w", err)
	}
	return out, nil
}

// GetBooking loads a booking by id.
func (p *Postgres) GetBooking(ctx context.Context, bookingID string) (*bookings.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, bookings.ErrBookingNotFound
	}
	row := p.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookings.ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// InsertConfirmedIfFree inserts a confirmed booking inside a transaction that
// holds the table's advisory lock while checking for overlaps.
func (p *Postgres) InsertConfirmedIfFree(ctx context.Context, b bookings.Booking) (*bookings.Booking, error) {
	ctx, span := storeTracer.Start(ctx, "store.insert_booking")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.table_id", b.TableID))

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: begin insert booking: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockTableAndCheck(ctx, tx, b, ""); err != nil {
		return nil, err
	}

	b.Status = bookings.StatusConfirmed
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (restaurant_id, customer_id, table_id, title, pax, status, notes, type, start_date_time, end_date_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text
	`, b.RestaurantID, b.CustomerID, b.TableID, b.Title, b.PartySize, string(b.Status), b.Notes, b.Type,
		b.Window.Start.UTC(), b.Window.End.UTC()).Scan(&b.ID)
	if err != nil {
		span.RecordError(err)
		return nil, mapWriteError("insert booking", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapWriteError("commit insert booking", err)
	}
	return &b, nil
}

// UpdateIfFree rewrites a booking under the same advisory lock and overlap
// check as InsertConfirmedIfFree, ignoring the booking's own window.
func (p *Postgres) UpdateIfFree(ctx context.Context, b bookings.Booking) (*bookings.Booking, error) {
	ctx, span := storeTracer.Start(ctx, "store.update_booking")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.booking_id", b.ID))

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: begin update booking: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if b.Status == bookings.StatusConfirmed {
		if err := lockTableAndCheck(ctx, tx, b, b.ID); err != nil {
			return nil, err
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET table_id = $2, pax = $3, status = $4, notes = $5, start_date_time = $6, end_date_time = $7, updated_at = now()
		WHERE id = $1
	`, b.ID, b.TableID, b.PartySize, string(b.Status), b.Notes, b.Window.Start.UTC(), b.Window.End.UTC())
	if err != nil {
		span.RecordError(err)
		return nil, mapWriteError("update booking", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, bookings.ErrBookingNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapWriteError("commit update booking", err)
	}
	return &b, nil
}

// SetStatus changes a booking's status.
func (p *Postgres) SetStatus(ctx context.Context, bookingID string, status bookings.Status) error {
	tag, err := p.pool.Exec(ctx, `UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`, bookingID, string(status))
	if err != nil {
		return fmt.Errorf("store: set booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bookings.ErrBookingNotFound
	}
	return nil
}

// UpsertCustomer returns the customer for phone, creating it on first contact.
// A name is attached only when none was stored.
func (p *Postgres) UpsertCustomer(ctx context.Context, phone, name string) (*bookings.Customer, error) {
	var c bookings.Customer
	err := p.pool.QueryRow(ctx, `
		INSERT INTO customers (name, phone)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE
		SET name = CASE WHEN customers.name = '' THEN EXCLUDED.name ELSE customers.name END
		RETURNING id::text, name, phone
	`, strings.TrimSpace(name), phone).Scan(&c.ID, &c.Name, &c.Phone)
	if err != nil {
		return nil, fmt.Errorf("store: upsert customer: %w", err)
	}
	return &c, nil
}

// AppendMessage records a chat log entry. A repeated WhatsApp message id for
// the same customer returns chatlog.ErrDuplicateMessage.
func (p *Postgres) AppendMessage(ctx context.Context, msg chatlog.Message) (*chatlog.Message, error) {
	ctx, span := storeTracer.Start(ctx, "store.append_message")
	defer span.End()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	var externalID *string
	if msg.ExternalID != "" {
		externalID = &msg.ExternalID
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO chat_logs (restaurant_id, customer_id, sender, message, whatsapp_msg_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, seq
	`, msg.RestaurantID, msg.CustomerID, string(msg.Sender), msg.Body, externalID, msg.Timestamp).Scan(&msg.ID, &msg.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, chatlog.ErrDuplicateMessage
		}
		span.RecordError(err)
		return nil, fmt.Errorf("store: append message: %w", err)
	}
	return &msg, nil
}

// ListRecentMessages returns up to limit of the customer's latest messages.
func (p *Postgres) ListRecentMessages(ctx context.Context, restaurantID, customerID string, limit int) ([]chatlog.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, restaurant_id::text, customer_id::text, sender, message, COALESCE(whatsapp_msg_id, ''), timestamp, seq
		FROM chat_logs
		WHERE restaurant_id = $1 AND customer_id = $2
		ORDER BY timestamp DESC, seq DESC
		LIMIT $3
	`, restaurantID, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []chatlog.Message
	for rows.Next() {
		var m chatlog.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.CustomerID, &sender, &m.Body, &m.ExternalID, &m.Timestamp, &m.Seq); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Sender = chatlog.Sender(sender)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return chatlog.Recent(out, limit), nil
}

// HasExternalID reports whether the customer already sent externalID.
func (p *Postgres) HasExternalID(ctx context.Context, restaurantID, customerID, externalID string) (bool, error) {
	var exists int
	err := p.pool.QueryRow(ctx, `
		SELECT 1 FROM chat_logs
		WHERE restaurant_id = $1 AND customer_id = $2 AND whatsapp_msg_id = $3
		LIMIT 1
	`, restaurantID, customerID, externalID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("store: check external id: %w", err)
	}
	return true, nil
}

// LatestTextMatch returns when the customer last sent exactly text.
func (p *Postgres) LatestTextMatch(ctx context.Context, restaurantID, customerID, text string) (time.Time, bool, error) {
	var ts time.Time
	err := p.pool.QueryRow(ctx, `
		SELECT timestamp FROM chat_logs
		WHERE restaurant_id = $1 AND customer_id = $2 AND sender = 'customer' AND message = $3
		ORDER BY timestamp DESC
		LIMIT 1
	`, restaurantID, customerID, text).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("store: latest text match: %w", err)
	}
	return ts, true, nil
}

// ListStaffTokens returns registered staff device tokens.
func (p *Postgres) ListStaffTokens(ctx context.Context, restaurantID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT token FROM staff_devices WHERE restaurant_id = $1 ORDER BY token`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("store: list staff tokens: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("store: scan staff token: %w", err)
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

// AddStaffToken registers a staff device token.
func (p *Postgres) AddStaffToken(ctx context.Context, restaurantID, token, label string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO staff_devices (restaurant_id, token, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (restaurant_id, token) DO UPDATE SET label = EXCLUDED.label
	`, restaurantID, token, label)
	if err != nil {
		return fmt.Errorf("store: add staff token: %w", err)
	}
	return nil
}

// RemoveStaffToken unregisters a staff device token.
func (p *Postgres) RemoveStaffToken(ctx context.Context, restaurantID, token string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM staff_devices WHERE restaurant_id = $1 AND token = $2`, restaurantID, token); err != nil {
		return fmt.Errorf("store: remove staff token: %w", err)
	}
	return nil
}

func lockTableAndCheck(ctx context.Context, tx pgx.Tx, b bookings.Booking, excludeID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.TableID); err != nil {
		return fmt.Errorf("store: lock table: %w", err)
	}
	var overlapping bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE restaurant_id = $1 AND table_id = $2 AND status = 'confirmed'
			  AND start_date_time < $4 AND end_date_time > $3
			  AND id::text <> $5
		)
	`, b.RestaurantID, b.TableID, b.Window.Start.UTC(), b.Window.End.UTC(), excludeID).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("store: overlap check: %w", err)
	}
	if overlapping {
		return bookings.ErrSlotUnavailable
	}
	return nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return bookings.ErrSlotUnavailable
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func scanBooking(row pgx.Row) (*bookings.Booking, error) {
	var b bookings.Booking
	var status string
	if err := row.Scan(&b.ID, &b.RestaurantID, &b.CustomerID, &b.TableID, &b.Title, &b.PartySize,
		&status, &b.Notes, &b.Type, &b.Window.Start, &b.Window.End); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan booking: %w", err)
	}
	b.Status = bookings.Status(status)
	return &b, nil
}
