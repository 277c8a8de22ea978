package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EntryType is the side of a double-entry posting.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// AccountCode identifies a ledger account. The set is fixed; new accounts
// require a code change, not configuration.
type AccountCode string

const (
	AccountCashBank              AccountCode = "CASH_BANK"
	AccountRevenueGross          AccountCode = "REVENUE_GROSS"
	AccountRevenueService        AccountCode = "REVENUE_SERVICE"
	AccountLiabilityProfessional AccountCode = "LIABILITY_PROFESSIONAL"
	AccountExpenseFee            AccountCode = "EXPENSE_FEE"
	AccountExpenseOperational    AccountCode = "EXPENSE_OPERATIONAL"
	AccountEquityAdjustment      AccountCode = "EQUITY_ADJUSTMENT"
)

// AccountClass determines the sign convention used when aggregating balances.
type AccountClass int

const (
	// ClassDebitNormal accounts (assets, expenses) grow with debits.
	ClassDebitNormal AccountClass = iota
	// ClassCreditNormal accounts (revenue, liabilities, equity) grow with credits.
	ClassCreditNormal
)

var accountClasses = map[AccountCode]AccountClass{
	AccountCashBank:              ClassDebitNormal,
	AccountExpenseFee:            ClassDebitNormal,
	AccountExpenseOperational:    ClassDebitNormal,
	AccountRevenueGross:          ClassCreditNormal,
	AccountRevenueService:        ClassCreditNormal,
	AccountLiabilityProfessional: ClassCreditNormal,
	AccountEquityAdjustment:      ClassCreditNormal,
}

// Valid reports whether the account code is part of the fixed enumeration.
func (c AccountCode) Valid() bool {
	_, ok := accountClasses[c]
	return ok
}

// Class returns the sign convention for the account. Callers must have
// validated the code first; unknown codes aggregate as debit-normal.
func (c AccountCode) Class() AccountClass {
	return accountClasses[c]
}

// Valid reports whether the entry type is DEBIT or CREDIT.
func (t EntryType) Valid() bool {
	return t == EntryTypeDebit || t == EntryTypeCredit
}

// ManualCorrectionSuffix tags operator-inserted correction entries so the
// manual correction path can be distinguished from automated postings.
const ManualCorrectionSuffix = " [manual-correction]"

// Entry is a single immutable ledger posting. Amounts are integer cents and
// always positive; direction is carried by EntryType.
type Entry struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID string         `json:"transaction_id" gorm:"not null;index"`
	AccountCode   AccountCode    `json:"account_code" gorm:"not null;index"`
	EntryType     EntryType      `json:"entry_type" gorm:"not null"`
	Amount        int64          `json:"amount" gorm:"not null"`
	Description   string         `json:"description"`
	Metadata      datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName returns the database table name.
func (Entry) TableName() string {
	return "payment_ledger_entries"
}

// IsManualCorrection reports whether the entry was written through the
// operator correction path.
func (e *Entry) IsManualCorrection() bool {
	n := len(e.Description)
	s := len(ManualCorrectionSuffix)
	return n >= s && e.Description[n-s:] == ManualCorrectionSuffix
}

// Balance is an aggregated per-account balance, signed per the account's
// class convention.
type Balance struct {
	AccountCode AccountCode `json:"account_code"`
	Balance     int64       `json:"balance"`
	DebitTotal  int64       `json:"debit_total"`
	CreditTotal int64       `json:"credit_total"`
	EntryCount  int64       `json:"entry_count"`
}
