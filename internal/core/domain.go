package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	RoleAdmin   Role = "admin"
	RoleRegular Role = "regular"
)

type (
	Role string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID        int64
		Username  string
		FullName  string
		Role      Role
		CreatedAt time.Time
	}

	Expense struct {
		ID        int64
		UserID    int64 // may reference a deleted user
		Amount    Money
		Purpose   string
		Category  string
		Date      Date
		CreatedAt time.Time
	}

	// DateRange is an inclusive calendar-date interval.
	DateRange struct {
		Start Date
		End   Date
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrEmptyPurpose       = errors.New("empty purpose")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
	ErrSelfDeletion       = errors.New("cannot delete your own account")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
)

// Categories is the fixed set an expense must belong to.
var Categories = []string{
	"Food & Dining",
	"Transportation",
	"Housing & Utilities",
	"Groceries",
	"Healthcare",
	"Entertainment",
	"Clothing",
	"Education",
	"Gifts",
	"Savings & Investment",
	"Maintenance",
	"Communication",
	"Travel",
	"Fitness",
	"Technology",
}

// ValidCategory reports whether name is a member of the configured category set.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// ValidateUsername checks the 3-20 character alphanumeric-plus-underscore rule.
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// ValidatePassword enforces minimum strength: at least 8 characters with an
// uppercase letter, a lowercase letter, a digit and a special character.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleRegular
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses the ISO calendar-date format used on the wire and in storage.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Next returns the following calendar day.
func (d Date) Next() Date {
	return Date{Time: d.AddDate(0, 0, 1)}
}

// MonthKey returns the YYYY-MM bucket the date falls into.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Purpose)) == 0 {
		return ErrEmptyPurpose
	}
	if len(e.Purpose) > 200 {
		return errors.New("purpose too long (max 200 characters)")
	}
	if !ValidCategory(e.Category) {
		return ErrInvalidCategory
	}
	return nil
}

func (r DateRange) Validate() error {
	if err := r.Start.Validate(); err != nil {
		return err
	}
	if err := r.End.Validate(); err != nil {
		return err
	}
	if r.End.Before(r.Start.Time) {
		return errors.New("end date before start date")
	}
	return nil
}

// Days returns the number of calendar days the range spans, inclusive.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start.Time)/(24*time.Hour)) + 1
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start.Time) && !d.After(r.End.Time)
}

// LastNDays builds the lookback window ending today that dashboards and the
// insight collaborator default to.
func LastNDays(now time.Time, n int) DateRange {
	end := DateOf(now)
	start := Date{Time: end.AddDate(0, 0, -(n - 1))}
	return DateRange{Start: start, End: end}
}
