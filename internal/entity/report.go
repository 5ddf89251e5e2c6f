package entity

import (
	"fmt"
	"strings"
)

// PersonalInfo holds the consumer identity block of a report. At most one per document.
type PersonalInfo struct {
	FullName       string `json:"full_name,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	CurrentAddress string `json:"current_address,omitempty"`
	SSNPartial     string `json:"ssn_partial,omitempty"`
}

// Empty reports whether no field was recovered.
func (p PersonalInfo) Empty() bool {
	return p.FullName == "" && p.DateOfBirth == "" && p.CurrentAddress == "" && p.SSNPartial == ""
}

// CreditAccount is a tradeline. Optional amounts are nil when absent or unparsable.
type CreditAccount struct {
	Creditor      string   `json:"creditor"`
	AccountNumber string   `json:"account_number"`
	AccountType   string   `json:"account_type,omitempty"`
	Status        string   `json:"status,omitempty"`
	Balance       *float64 `json:"balance,omitempty"`
	CreditLimit   *float64 `json:"credit_limit,omitempty"`
	PastDue       *float64 `json:"past_due,omitempty"`
	DateOpened    string   `json:"date_opened,omitempty"`
}

// Key is the natural composite key (creditor, account number).
func (a CreditAccount) Key() string {
	return strings.ToLower(strings.TrimSpace(a.Creditor)) + "|" + strings.ToLower(strings.TrimSpace(a.AccountNumber))
}

// CreditInquiry is a request for the consumer's report.
type CreditInquiry struct {
	Inquirer    string `json:"inquirer"`
	InquiryDate string `json:"inquiry_date"`
	InquiryType string `json:"inquiry_type,omitempty"`
}

// Key is the natural composite key (inquirer, date).
func (i CreditInquiry) Key() string {
	return strings.ToLower(strings.TrimSpace(i.Inquirer)) + "|" + i.InquiryDate
}

// NegativeItem is a derogatory mark with a severity weight.
type NegativeItem struct {
	ItemType    string   `json:"item_type"`
	Creditor    string   `json:"creditor,omitempty"`
	Description string   `json:"description"`
	Amount      *float64 `json:"amount,omitempty"`
	Severity    int      `json:"severity"`
	DateLabel   string   `json:"date,omitempty"`
}

// Key is the natural composite key (type, creditor, amount).
func (n NegativeItem) Key() string {
	amt := ""
	if n.Amount != nil {
		amt = fmt.Sprintf("%.2f", *n.Amount)
	}
	return n.ItemType + "|" + strings.ToLower(strings.TrimSpace(n.Creditor)) + "|" + amt
}

// ReportEntities is the typed output of entity parsing for one document.
type ReportEntities struct {
	PersonalInfo  *PersonalInfo   `json:"personal_info,omitempty"`
	Accounts      []CreditAccount `json:"accounts"`
	Inquiries     []CreditInquiry `json:"inquiries"`
	NegativeItems []NegativeItem  `json:"negative_items"`
}
