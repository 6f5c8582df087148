package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Phone roles. Role is promoted to RoleTarget the first time a number is seen
// in the target position and never demoted afterwards.
const (
	RoleTarget    = "ALVO"
	RoleSecondary = "SECUNDARIO"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so repositories can run
// against the pool or inside a per-document transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ErrDuplicate is returned by Insert when another import created the row
// first. The inserts use ON CONFLICT DO NOTHING so the conflict never raises
// a statement error, which inside a transaction would abort it and poison
// every later statement with 25P02.
var ErrDuplicate = errors.New("row already exists")

// IsUniqueViolation reports whether err means the row already existed:
// either our ErrDuplicate sentinel or a raw postgres 23505. Concurrent
// imports may race to create the same phone or IP row; callers treat this
// as "fetch existing instead of create".
func IsUniqueViolation(err error) bool {
	if errors.Is(err, ErrDuplicate) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Operation is one investigation case; it partitions phones, messages and files.
type Operation struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Phone is unique per (operation, number). Identification, photo, category and
// notes are edited by operators after import and are not touched here.
type Phone struct {
	ID             int64   `db:"id"`
	OperationID    int64   `db:"operation_id"`
	Number         string  `db:"number"`
	Identification *string `db:"identification"`
	Photo          *string `db:"photo"`
	Role           string  `db:"role"`
	Category       *string `db:"category"`
	Notes          *string `db:"notes"`
	MessageCount   int     `db:"message_count"`
}

// IP is unique per address globally, not per operation. Geolocation fields
// stay null until the enrichment collaborator fills them in.
type IP struct {
	ID        int64    `db:"id"`
	Address   string   `db:"address"`
	Country   *string  `db:"country"`
	City      *string  `db:"city"`
	Latitude  *float64 `db:"latitude"`
	Longitude *float64 `db:"longitude"`
	Provider  *string  `db:"provider"`
}

// Message is immutable once created; deleted only via cascading operation deletion.
type Message struct {
	ID          int64      `db:"id"`
	OperationID int64      `db:"operation_id"`
	Target      *string    `db:"target"`
	Sender      string     `db:"sender"`
	Recipient   string     `db:"recipient"`
	IPID        int64      `db:"ip_id"`
	Port        *int       `db:"port"`
	OccurredAt  *time.Time `db:"occurred_at"`
	MessageType string     `db:"message_type"`
}

// File is one ingested document, keyed by (operation, content hash) for
// idempotent re-import.
type File struct {
	ID               int64     `db:"id"`
	OperationID      int64     `db:"operation_id"`
	Name             string    `db:"name"`
	ContentHash      string    `db:"content_hash"`
	UploadedAt       time.Time `db:"uploaded_at"`
	TargetIdentifier *string   `db:"target_identifier"`
	PeriodStart      *string   `db:"period_start"`
	PeriodEnd        *string   `db:"period_end"`
}

// Store interfaces implemented by the repositories below. The import pipeline
// depends on these rather than on the concrete types so tests can use fakes.
type (
	OperationStore interface {
		Create(ctx context.Context, op *Operation) error
		GetByID(ctx context.Context, id int64) (*Operation, error)
		List(ctx context.Context) ([]*Operation, error)
		Delete(ctx context.Context, id int64) error
	}

	FileStore interface {
		FindByHash(ctx context.Context, operationID int64, hash string) (*File, error)
		Create(ctx context.Context, file *File) error
		ListByOperation(ctx context.Context, operationID int64) ([]*File, error)
	}

	PhoneStore interface {
		FindByNumber(ctx context.Context, operationID int64, number string) (*Phone, error)
		Insert(ctx context.Context, phone *Phone) (int64, error)
		UpdateRole(ctx context.Context, id int64, role string) error
	}

	IPStore interface {
		FindByAddress(ctx context.Context, address string) (*IP, error)
		Insert(ctx context.Context, address string) (int64, error)
	}

	MessageStore interface {
		InsertBatch(ctx context.Context, messages []*Message) error
	}
)

// OperationRepository handles operation persistence
type OperationRepository struct {
	db Querier
}

func NewOperationRepository(db Querier) *OperationRepository {
	return &OperationRepository{db: db}
}

func (r *OperationRepository) Create(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO operations (name, description, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	op.CreatedAt = time.Now().UTC()
	return r.db.QueryRowContext(ctx, query, op.Name, op.Description, op.CreatedAt).Scan(&op.ID)
}

func (r *OperationRepository) GetByID(ctx context.Context, id int64) (*Operation, error) {
	query := `SELECT id, name, description, created_at FROM operations WHERE id = $1`

	op := &Operation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&op.ID, &op.Name, &op.Description, &op.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return op, nil
}

func (r *OperationRepository) List(ctx context.Context) ([]*Operation, error) {
	query := `SELECT id, name, description, created_at FROM operations ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var operations []*Operation
	for rows.Next() {
		op := &Operation{}
		if err := rows.Scan(&op.ID, &op.Name, &op.Description, &op.CreatedAt); err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}

	return operations, rows.Err()
}

// Delete removes an operation and everything it owns. Children are deleted in
// fixed-size chunks so a large case does not hold row locks for minutes.
// Global IP rows are left in place.
func (r *OperationRepository) Delete(ctx context.Context, id int64) error {
	const chunk = 5000

	for _, table := range []string{"messages", "phones", "files"} {
		query := fmt.Sprintf(`
			DELETE FROM %s
			WHERE id IN (SELECT id FROM %s WHERE operation_id = $1 LIMIT $2)`, table, table)

		for {
			res, err := r.db.ExecContext(ctx, query, id, chunk)
			if err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				break
			}
		}
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM operations WHERE id = $1`, id)
	return err
}

// FileRepository handles ingested-document records
type FileRepository struct {
	db Querier
}

func NewFileRepository(db Querier) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) FindByHash(ctx context.Context, operationID int64, hash string) (*File, error) {
	query := `
		SELECT id, operation_id, name, content_hash, uploaded_at,
			   target_identifier, period_start, period_end
		FROM files
		WHERE operation_id = $1 AND content_hash = $2`

	file := &File{}
	err := r.db.QueryRowContext(ctx, query, operationID, hash).Scan(
		&file.ID, &file.OperationID, &file.Name, &file.ContentHash, &file.UploadedAt,
		&file.TargetIdentifier, &file.PeriodStart, &file.PeriodEnd,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return file, nil
}

func (r *FileRepository) Create(ctx context.Context, file *File) error {
	query := `
		INSERT INTO files (
			operation_id, name, content_hash, uploaded_at,
			target_identifier, period_start, period_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	file.UploadedAt = time.Now().UTC()
	return r.db.QueryRowContext(ctx, query,
		file.OperationID, file.Name, file.ContentHash, file.UploadedAt,
		file.TargetIdentifier, file.PeriodStart, file.PeriodEnd,
	).Scan(&file.ID)
}

func (r *FileRepository) ListByOperation(ctx context.Context, operationID int64) ([]*File, error) {
	query := `
		SELECT id, operation_id, name, content_hash, uploaded_at,
			   target_identifier, period_start, period_end
		FROM files
		WHERE operation_id = $1
		ORDER BY uploaded_at DESC`

	rows, err := r.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file := &File{}
		err := rows.Scan(
			&file.ID, &file.OperationID, &file.Name, &file.ContentHash, &file.UploadedAt,
			&file.TargetIdentifier, &file.PeriodStart, &file.PeriodEnd,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// PhoneRepository handles phone entity persistence
type PhoneRepository struct {
	db Querier
}

func NewPhoneRepository(db Querier) *PhoneRepository {
	return &PhoneRepository{db: db}
}

func (r *PhoneRepository) FindByNumber(ctx context.Context, operationID int64, number string) (*Phone, error) {
	query := `
		SELECT id, operation_id, number, identification, photo, role, category, notes, message_count
		FROM phones
		WHERE operation_id = $1 AND number = $2`

	phone := &Phone{}
	err := r.db.QueryRowContext(ctx, query, operationID, number).Scan(
		&phone.ID, &phone.OperationID, &phone.Number, &phone.Identification,
		&phone.Photo, &phone.Role, &phone.Category, &phone.Notes, &phone.MessageCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return phone, nil
}

func (r *PhoneRepository) Insert(ctx context.Context, phone *Phone) (int64, error) {
	query := `
		INSERT INTO phones (operation_id, number, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (operation_id, number) DO NOTHING
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, phone.OperationID, phone.Number, phone.Role).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrDuplicate
		}
		return 0, err
	}

	phone.ID = id
	return id, nil
}

func (r *PhoneRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE phones SET role = $2 WHERE id = $1`, id, role)
	return err
}

// IPRepository handles IP entity persistence
type IPRepository struct {
	db Querier
}

func NewIPRepository(db Querier) *IPRepository {
	return &IPRepository{db: db}
}

func (r *IPRepository) FindByAddress(ctx context.Context, address string) (*IP, error) {
	query := `
		SELECT id, address, country, city, latitude, longitude, provider
		FROM ips
		WHERE address = $1`

	ip := &IP{}
	err := r.db.QueryRowContext(ctx, query, address).Scan(
		&ip.ID, &ip.Address, &ip.Country, &ip.City, &ip.Latitude, &ip.Longitude, &ip.Provider,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return ip, nil
}

func (r *IPRepository) Insert(ctx context.Context, address string) (int64, error) {
	query := `
		INSERT INTO ips (address)
		VALUES ($1)
		ON CONFLICT (address) DO NOTHING
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, address).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrDuplicate
		}
		return 0, err
	}

	return id, nil
}

// MessageRepository handles message persistence
type MessageRepository struct {
	db Querier
}

func NewMessageRepository(db Querier) *MessageRepository {
	return &MessageRepository{db: db}
}

// InsertBatch inserts all messages in a single multi-row statement. Rows
// within one batch carry no ordering guarantee relative to each other.
func (r *MessageRepository) InsertBatch(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	const cols = 8
	placeholders := make([]string, 0, len(messages))
	args := make([]interface{}, 0, len(messages)*cols)

	for i, m := range messages {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			m.OperationID, m.Target, m.Sender, m.Recipient,
			m.IPID, m.Port, m.OccurredAt, m.MessageType,
		)
	}

	query := `
		INSERT INTO messages (
			operation_id, target, sender, recipient, ip_id, port, occurred_at, message_type
		) VALUES ` + strings.Join(placeholders, ", ")

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *MessageRepository) CountByOperation(ctx context.Context, operationID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE operation_id = $1`, operationID).Scan(&count)
	return count, err
}
