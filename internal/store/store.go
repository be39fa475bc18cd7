package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/vbehar/ffckmembers/internal/metrics"
	"github.com/vbehar/ffckmembers/internal/model"
)

// mysqlErrDuplicateEntry is the MySQL error number for a unique key
// violation.
const mysqlErrDuplicateEntry = 1062

// allowedOrderBy are the columns a Filter may sort by.
var allowedOrderBy = []string{
	model.ColumnCode,
	model.ColumnFirstName,
	model.ColumnLastName,
	model.ColumnLastLicense,
}

// Filter restricts and orders the result of a Query. The zero value matches
// all members, sorted by last name ascending.
type Filter struct {
	// FirstName and LastName are case-insensitive prefixes.
	FirstName string
	LastName  string
	// LastLicense is an exact license year.
	LastLicense string
	// OrderBy must be one of allowedOrderBy; empty means last name.
	OrderBy    string
	Descending bool
}

// Store is the persistent table of members, keyed by the unique license
// code. Every successful mutation is broadcast through the notifier.
type Store struct {
	db       *sqlx.DB
	notifier *Notifier
	metrics  *metrics.Metrics

	insert          *sqlx.NamedStmt
	update          *sqlx.NamedStmt
	selectWhereCode *sqlx.Stmt
	deleteWhereCode *sqlx.Stmt
}

// New initializes the sqlx database wrapper with the specified sql database
// and prepares all statements. The database argument can be a real database
// for production use or a mock database within unit tests. The notifier and
// metrics may be nil.
func New(sqlDB *sql.DB, notifier *Notifier, m *metrics.Metrics) *Store {
	s := &Store{
		db:       sqlx.NewDb(sqlDB, "mysql"),
		notifier: notifier,
		metrics:  m,
	}

	// Prepared statements offer a significant speed increase if executed many
	// times, which is exactly what a bulk import does.
	var err error
	s.insert, err = s.db.PrepareNamed(`
		INSERT INTO members (code, first_name, last_name, birth_date, gender,
			address, postal_code, city, country, phone_home, phone_other,
			phone_mobile, phone_mobile_2, email, email_2, last_license)
		VALUES (:code, :first_name, :last_name, :birth_date, :gender,
			:address, :postal_code, :city, :country, :phone_home, :phone_other,
			:phone_mobile, :phone_mobile_2, :email, :email_2, :last_license)
	`)
	if err != nil {
		log.Fatal(err)
	}
	s.update, err = s.db.PrepareNamed(`
		UPDATE members SET first_name=:first_name, last_name=:last_name,
			birth_date=:birth_date, gender=:gender, address=:address,
			postal_code=:postal_code, city=:city, country=:country,
			phone_home=:phone_home, phone_other=:phone_other,
			phone_mobile=:phone_mobile, phone_mobile_2=:phone_mobile_2,
			email=:email, email_2=:email_2, last_license=:last_license
		WHERE code=:code
	`)
	if err != nil {
		log.Fatal(err)
	}
	s.selectWhereCode, err = s.db.Preparex(`
		SELECT * FROM members WHERE code = ?
	`)
	if err != nil {
		log.Fatal(err)
	}
	s.deleteWhereCode, err = s.db.Preparex(`
		DELETE FROM members WHERE code = ?
	`)
	if err != nil {
		log.Fatal(err)
	}
	return s
}

// Query returns the members matching the filter, in the requested order.
// There is no result set size limit.
func (s *Store) Query(filter Filter) ([]model.Member, error) {
	var conditions []string
	var args []interface{}
	if filter.FirstName != "" {
		conditions = append(conditions, "UPPER(first_name) LIKE ?")
		args = append(args, strings.ToUpper(filter.FirstName)+"%")
	}
	if filter.LastName != "" {
		conditions = append(conditions, "UPPER(last_name) LIKE ?")
		args = append(args, strings.ToUpper(filter.LastName)+"%")
	}
	if filter.LastLicense != "" {
		conditions = append(conditions, "last_license = ?")
		args = append(args, filter.LastLicense)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = model.ColumnLastName
	}
	if !contains(allowedOrderBy, orderBy) {
		return nil, fmt.Errorf("cannot order by %q", orderBy)
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}

	query := "SELECT * FROM members"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderBy, direction)

	var members []model.Member
	if err := s.db.Select(&members, query, args...); err != nil {
		return nil, err
	}
	return members, nil
}

// Get returns the member with the given license code, or nil if there is
// none.
func (s *Store) Get(code string) (*model.Member, error) {
	var members []model.Member
	if err := s.selectWhereCode.Select(&members, code); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}

// Insert stores a new member and returns its surrogate row id. The member
// must carry the required fields, and no member with the same code may exist
// yet.
func (s *Store) Insert(member model.Member) (int64, error) {
	if err := validate(member); err != nil {
		return 0, err
	}
	result, err := s.insert.Exec(&member)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateCode, member.Code)
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notifier.Notify(member.ResourceAddress())
	s.metrics.CountMutation("insert")
	return id, nil
}

// Update replaces the whole record stored under the given code and returns
// the number of updated rows (0 or 1). Updating a nonexistent code is not an
// error. The code itself never changes: the one in the member value is
// overwritten by the addressed one.
func (s *Store) Update(code string, member model.Member) (int64, error) {
	member.Code = code
	if err := validate(member); err != nil {
		return 0, err
	}
	result, err := s.update.Exec(&member)
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.notifier.Notify(member.ResourceAddress())
		s.metrics.CountMutation("update")
	}
	return count, nil
}

// Delete removes the member with the given code and returns the number of
// deleted rows (0 or 1).
func (s *Store) Delete(code string) (int64, error) {
	result, err := s.deleteWhereCode.Exec(code)
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.notifier.Notify(model.CollectionAddress + "/" + code)
		s.metrics.CountMutation("delete")
	}
	return count, nil
}

// DeleteAll empties the members table and returns the number of deleted
// rows.
func (s *Store) DeleteAll() (int64, error) {
	result, err := s.db.Exec("DELETE FROM members")
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.notifier.Notify(model.CollectionAddress)
	s.metrics.CountMutation("delete_all")
	return count, nil
}

// Count returns the number of stored members.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM members"); err != nil {
		return 0, err
	}
	return count, nil
}

// validate checks the required fields of a member.
func validate(member model.Member) error {
	if member.Code == "" || member.FirstName == "" || member.LastName == "" {
		return fmt.Errorf("%w: code, firstname and lastname are required (code=%q)",
			ErrInvalidRecord, member.Code)
	}
	return nil
}

// contains returns true if a string is present in a slice.
func contains(slice []string, str string) bool {
	for _, v := range slice {
		if v == str {
			return true
		}
	}
	return false
}
