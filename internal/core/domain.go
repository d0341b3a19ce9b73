package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

// DateLayout is the ISO calendar date the API uses for transactions.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	UserProfile struct {
		ID              int64    `json:"id"`
		Email           string   `json:"email"`
		Name            string   `json:"name"`
		Username        string   `json:"username"`
		AvatarURL       string   `json:"avatar_url,omitempty"`
		Currency        string   `json:"currency"`
		Language        string   `json:"language"`
		MonthlyIncome   *float64 `json:"monthly_income,omitempty"`
		IncomeFrequency *string  `json:"income_frequency,omitempty"`
	}

	Wallet struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Balance  Amount `json:"balance"`
		Currency string `json:"currency"`
		Type     string `json:"type"`
		Color    string `json:"color"`
	}

	Transaction struct {
		ID       int64           `json:"id"`
		Amount   Amount          `json:"amount"`
		Type     TransactionType `json:"type"`
		Category string          `json:"category"`
		Date     string          `json:"date"`
		Name     string          `json:"name"`
		Status   string          `json:"status,omitempty"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyCurrency   = errors.New("empty currency")
	ErrDescriptionLong = errors.New("name too long (max 200 characters)")
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	default:
		return false
	}
}

// ParsedDate parses the transaction date. Full RFC 3339 timestamps are
// accepted too since some endpoints return datetimes.
func (t Transaction) ParsedDate() (time.Time, error) {
	s := strings.TrimSpace(t.Date)
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d, nil
	}
	return time.Time{}, ErrInvalidDate
}

// InMonth reports whether the transaction is dated in the given year and month.
// Unparseable dates are never in any month.
func (t Transaction) InMonth(year int, month time.Month) bool {
	d, err := t.ParsedDate()
	if err != nil {
		return false
	}
	return d.Year() == year && d.Month() == month
}

// Income returns the declared monthly income, or zero when unset.
func (u UserProfile) Income() float64 {
	if u.MonthlyIncome == nil {
		return 0
	}
	return *u.MonthlyIncome
}

// Clone returns a deep copy of u, including its optional fields.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	if u.MonthlyIncome != nil {
		v := *u.MonthlyIncome
		c.MonthlyIncome = &v
	}
	if u.IncomeFrequency != nil {
		v := *u.IncomeFrequency
		c.IncomeFrequency = &v
	}
	return &c
}

// NewWallet is the payload for creating a wallet.
type NewWallet struct {
	Name     string `json:"name"`
	Balance  Amount `json:"balance"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
	Color    string `json:"color"`
}

// NewTransaction is the payload for creating a transaction.
type NewTransaction struct {
	Amount   Amount          `json:"amount"`
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
	Name     string          `json:"name"`
	WalletID int64           `json:"wallet,omitempty"`
}

func (w NewWallet) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return ErrEmptyName
	}
	if len(w.Name) > 200 {
		return ErrDescriptionLong
	}
	if strings.TrimSpace(w.Currency) == "" {
		return ErrEmptyCurrency
	}
	return nil
}

func (t NewTransaction) Validate() error {
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > 200 {
		return ErrDescriptionLong
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}
