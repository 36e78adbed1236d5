package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// sqlStore holds the queries shared by SQLite and PostgreSQL. Queries are
// written with ? placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db       *sql.DB
	name     string
	postgres bool
}

const carColumns = `id, brand, model, variant, type, fuel_type, transmission, year, kms_driven, owner, color, price, registration_number, image_url`

// distinctColumns whitelists the columns ListDistinct may read.
var distinctColumns = map[models.InventoryField]string{
	models.FieldBrand: "brand",
	models.FieldType:  "type",
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *sqlStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// filterClause renders the WHERE conditions of an inventory filter.
func filterClause(f models.InventoryFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Brand != "" {
		conds = append(conds, "LOWER(brand) = LOWER(?)")
		args = append(args, f.Brand)
	}
	if f.Type != "" {
		conds = append(conds, "LOWER(type) = LOWER(?)")
		args = append(args, f.Type)
	}
	if f.Budget != nil {
		conds = append(conds, "price >= ?")
		args = append(args, f.Budget.Min)
		if f.Budget.Max > 0 {
			conds = append(conds, "price < ?")
			args = append(args, f.Budget.Max)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// QueryInventory returns cars matching filter ordered by ascending price.
func (s *sqlStore) QueryInventory(ctx context.Context, f models.InventoryFilter) ([]models.CarRecord, error) {
	where, args := filterClause(f)
	query := `SELECT ` + carColumns + ` FROM cars WHERE 1=1` + where + ` ORDER BY price ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		slog.Error(s.name+".QueryInventory: query failed", "error", err)
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	var cars []models.CarRecord
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		cars = append(cars, car)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inventory rows: %w", err)
	}
	slog.Debug(s.name+".QueryInventory succeeded", "count", len(cars), "brand", f.Brand, "type", f.Type)
	return cars, nil
}

// ListDistinct returns the sorted distinct non-empty values of field among matching cars.
func (s *sqlStore) ListDistinct(ctx context.Context, field models.InventoryField, f models.InventoryFilter) ([]string, error) {
	col, ok := distinctColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	where, args := filterClause(f)
	query := `SELECT DISTINCT ` + col + ` FROM cars WHERE ` + col + ` IS NOT NULL AND ` + col + ` <> ''` + where + ` ORDER BY ` + col
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		slog.Error(s.name+".ListDistinct: query failed", "field", field, "error", err)
		return nil, fmt.Errorf("failed to list distinct %s: %w", field, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", field, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", field, err)
	}
	return values, nil
}

// AddCar inserts a car and returns its ID.
func (s *sqlStore) AddCar(ctx context.Context, c models.CarRecord) (int64, error) {
	query := `INSERT INTO cars (brand, model, variant, type, fuel_type, transmission, year, kms_driven, owner, color, price, registration_number, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		c.Brand, c.Model, nilIfEmpty(c.Variant), nilIfEmpty(c.Type), nilIfEmpty(c.Fuel), nilIfEmpty(c.Transmission),
		c.Year, c.KmsDriven, nilIfEmpty(c.Owner), nilIfEmpty(c.Color), c.Price, nilIfEmpty(c.RegistrationNumber), nilIfEmpty(c.ImageURL),
	}
	if s.postgres {
		var id int64
		if err := s.db.QueryRowContext(ctx, s.rebind(query+` RETURNING id`), args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert car %s: %w", c.Title(), err)
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert car %s: %w", c.Title(), err)
	}
	return res.LastInsertId()
}

// CountCars returns the number of cars in the inventory.
func (s *sqlStore) CountCars(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cars`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cars: %w", err)
	}
	return n, nil
}

// SaveLead writes a lead to its table and returns the generated ID.
func (s *sqlStore) SaveLead(ctx context.Context, lead models.Lead) (string, error) {
	id := uuid.NewString()
	var (
		query string
		args  []any
	)
	switch l := lead.(type) {
	case models.ValuationLead:
		query = `INSERT INTO car_valuations (id, name, phone, location, brand, model, year, fuel, kms, owner, condition, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		args = []any{id, l.Name, l.Phone, l.Location, l.Brand, l.Model, l.Year, l.Fuel, l.Kms, l.Owner, l.Condition, orNow(l.SubmittedAt)}
	case models.TestDriveBooking:
		query = `INSERT INTO test_drives (id, user_id, car, car_id, datetime, name, phone, has_dl, home_test_drive, address, preferred_day, preferred_slot, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		var carID any
		if l.CarID != 0 {
			carID = l.CarID
		}
		args = []any{id, l.UserPhone, l.Car, carID, l.ScheduledAt, l.Name, l.Phone, l.HasLicense, l.HomeTestDrive,
			nilIfEmpty(l.Address), nilIfEmpty(l.PreferredDay), nilIfEmpty(l.PreferredSlot), orNow(l.RequestedAt)}
	case models.CallbackRequest:
		query = `INSERT INTO callback_requests (id, name, phone, reason, preferred_time, created_at) VALUES (?, ?, ?, ?, ?, ?)`
		args = []any{id, l.Name, l.Phone, l.Reason, l.PreferredTime, orNow(l.RequestedAt)}
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownLeadKind, lead)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		slog.Error(s.name+".SaveLead failed", "kind", lead.Kind(), "error", err)
		return "", fmt.Errorf("failed to save %s lead: %w", lead.Kind(), err)
	}
	slog.Debug(s.name+".SaveLead succeeded", "kind", lead.Kind(), "id", id)
	return id, nil
}

// LogMessage appends one turn to message_logs.
func (s *sqlStore) LogMessage(ctx context.Context, e models.MessageLog) error {
	var entities any
	if len(e.Entities) > 0 {
		data, err := json.Marshal(e.Entities)
		if err != nil {
			return fmt.Errorf("failed to encode entities: %w", err)
		}
		entities = string(data)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO message_logs
		(phone_number, message_type, message_content, response_sent, response_content, session_id, intent, entities, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.PhoneNumber, string(e.MessageType), e.MessageContent, e.ResponseSent, nilIfEmpty(e.ResponseContent),
		nilIfEmpty(e.SessionID), nilIfEmpty(string(e.Intent)), entities, e.Confidence, orNow(e.CreatedAt))
	if err != nil {
		slog.Error(s.name+".LogMessage failed", "phone", e.PhoneNumber, "error", err)
		return fmt.Errorf("failed to log message for %s: %w", e.PhoneNumber, err)
	}
	return nil
}

// IsDuplicate implements DedupRepo.
func (s *sqlStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT message_id FROM inbound_dedup WHERE message_id = ?`), messageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

// RecordInbound implements DedupRepo.
func (s *sqlStore) RecordInbound(ctx context.Context, messageID, participantID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO inbound_dedup (message_id, participant_id, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`),
		messageID, participantID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed implements DedupRepo.
func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// ForgetInbound implements DedupRepo.
func (s *sqlStore) ForgetInbound(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM inbound_dedup WHERE message_id = ? AND processed_at IS NULL`), messageID)
	if err != nil {
		return fmt.Errorf("forget inbound failed: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}
