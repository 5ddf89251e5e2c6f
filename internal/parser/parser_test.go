package parser

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullReport = `EXPERIAN CREDIT REPORT
Personal Information
Name: Jane Q Public
Date of Birth: 04/12/1985
Address: 123 Main St
Springfield, IL 62704
SSN: XXX-XX-6789

Accounts
Creditor: Capital One
Account Number: XXXX5678
Account Type: Revolving
Balance: $2,500.00
Credit Limit: $5,000.00
Status: Open
Date Opened: 03/15/2019

Creditor: Wells Fargo
Account Number: 9876XXXX
Account Type: Installment
Balance: $10,200.00
Status: Closed
Date Opened: 2015-06-01

Inquiries
Discover Financial 01/15/2024
Ally Bank
02/20/2024

Collections
Midland Funding collection account $450.00 reported 05/01/2022`

func newTestParser() *Parser {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestParse_SingleLineAccount(t *testing.T) {
	out := newTestParser().Parse("Chase Bank Account ****1234 Balance $1,250.00 Status Open")

	require.Len(t, out.Accounts, 1)
	acct := out.Accounts[0]
	assert.Equal(t, "Chase Bank", acct.Creditor)
	assert.Equal(t, "****1234", acct.AccountNumber)
	require.NotNil(t, acct.Balance)
	assert.InDelta(t, 1250.00, *acct.Balance, 0.001)
	assert.Contains(t, acct.Status, "open")
	assert.Nil(t, acct.CreditLimit)
	assert.Nil(t, out.PersonalInfo)
	assert.Empty(t, out.Inquiries)
	assert.Empty(t, out.NegativeItems)
}

func TestParse_FullReport(t *testing.T) {
	out := newTestParser().Parse(fullReport)

	require.NotNil(t, out.PersonalInfo)
	assert.Equal(t, "Jane Q Public", out.PersonalInfo.FullName)
	assert.Equal(t, "1985-04-12", out.PersonalInfo.DateOfBirth)
	assert.Equal(t, "123 Main St, Springfield, IL 62704", out.PersonalInfo.CurrentAddress)
	assert.Equal(t, "XXX-XX-6789", out.PersonalInfo.SSNPartial)

	require.Len(t, out.Accounts, 2)
	first := out.Accounts[0]
	assert.Equal(t, "Capital One", first.Creditor)
	assert.Equal(t, "XXXX5678", first.AccountNumber)
	assert.Equal(t, "revolving", first.AccountType)
	assert.Equal(t, "open", first.Status)
	assert.Equal(t, "2019-03-15", first.DateOpened)
	require.NotNil(t, first.Balance)
	require.NotNil(t, first.CreditLimit)
	assert.InDelta(t, 2500.0, *first.Balance, 0.001)
	assert.InDelta(t, 5000.0, *first.CreditLimit, 0.001)

	second := out.Accounts[1]
	assert.Equal(t, "Wells Fargo", second.Creditor)
	assert.Equal(t, "9876XXXX", second.AccountNumber)
	assert.Equal(t, "installment", second.AccountType)
	assert.Equal(t, "closed", second.Status)
	assert.Equal(t, "2015-06-01", second.DateOpened)
	require.NotNil(t, second.Balance)
	assert.InDelta(t, 10200.0, *second.Balance, 0.001)
	assert.Nil(t, second.CreditLimit)

	require.Len(t, out.Inquiries, 2)
	assert.Equal(t, "Discover Financial", out.Inquiries[0].Inquirer)
	assert.Equal(t, "2024-01-15", out.Inquiries[0].InquiryDate)
	assert.Equal(t, "Ally Bank", out.Inquiries[1].Inquirer)
	assert.Equal(t, "2024-02-20", out.Inquiries[1].InquiryDate)

	require.Len(t, out.NegativeItems, 1)
	neg := out.NegativeItems[0]
	assert.Equal(t, "collection", neg.ItemType)
	assert.Equal(t, 7, neg.Severity)
	assert.Equal(t, "Midland Funding", neg.Creditor)
	assert.Equal(t, "2022-05-01", neg.DateLabel)
	require.NotNil(t, neg.Amount)
	assert.InDelta(t, 450.0, *neg.Amount, 0.001)
}

func TestParse_IdempotentAndDeduplicated(t *testing.T) {
	p := newTestParser()
	once := p.Parse(fullReport)
	again := p.Parse(fullReport)
	assert.Equal(t, once, again)

	doubled := p.Parse(fullReport + "\n" + fullReport)
	assert.Equal(t, once.Accounts, doubled.Accounts)
	assert.Equal(t, once.Inquiries, doubled.Inquiries)
	assert.Equal(t, once.NegativeItems, doubled.NegativeItems)
}

func TestParse_EmptyTextYieldsEmptyCollections(t *testing.T) {
	out := newTestParser().Parse("")
	assert.Nil(t, out.PersonalInfo)
	assert.NotNil(t, out.Accounts)
	assert.Empty(t, out.Accounts)
	assert.Empty(t, out.Inquiries)
	assert.Empty(t, out.NegativeItems)
}

func TestParse_PersonalInfoLabelsOnOneLine(t *testing.T) {
	text := "Consumer Name: JOHN A DOE DOB 01/02/1970\n" +
		"Current Address: 55 Elm Avenue Apt 4 Phone 555-1234\n" +
		"Social Security Number: ***-**-4321"
	out := newTestParser().Parse(text)

	require.NotNil(t, out.PersonalInfo)
	assert.Equal(t, "JOHN A DOE", out.PersonalInfo.FullName)
	assert.Equal(t, "1970-01-02", out.PersonalInfo.DateOfBirth)
	assert.Equal(t, "55 Elm Avenue Apt 4", out.PersonalInfo.CurrentAddress)
	assert.Equal(t, "XXX-XX-4321", out.PersonalInfo.SSNPartial)
}

func TestParse_InquirySections(t *testing.T) {
	text := `Hard Inquiries
Capital One 03/15/2023
2023-04-01 Ally Financial
Soft Inquiries
Chase Bank
May 5, 2023
Inquirer: Credit Karma
Inquiry Date: 06/01/2023`
	out := newTestParser().Parse(text)

	require.Len(t, out.Inquiries, 4)
	want := []struct{ name, date, kind string }{
		{"Capital One", "2023-03-15", InquiryHard},
		{"Ally Financial", "2023-04-01", InquiryHard},
		{"Chase Bank", "2023-05-05", InquirySoft},
		{"Credit Karma", "2023-06-01", InquirySoft},
	}
	for i, w := range want {
		assert.Equal(t, w.name, out.Inquiries[i].Inquirer, i)
		assert.Equal(t, w.date, out.Inquiries[i].InquiryDate, i)
		assert.Equal(t, w.kind, out.Inquiries[i].InquiryType, i)
	}
}

func TestParse_NegativeItems(t *testing.T) {
	text := `Public Records
Chapter 7 Bankruptcy filed 08/14/2018
Synchrony Bank charged off $1,980.55 on 11/03/2021
No collections reported`
	out := newTestParser().Parse(text)

	require.Len(t, out.NegativeItems, 2)
	bk := out.NegativeItems[0]
	assert.Equal(t, "bankruptcy", bk.ItemType)
	assert.Equal(t, 10, bk.Severity)
	assert.Equal(t, "2018-08-14", bk.DateLabel)
	assert.Nil(t, bk.Amount)
	assert.Empty(t, bk.Creditor)

	co := out.NegativeItems[1]
	assert.Equal(t, "charge_off", co.ItemType)
	assert.Equal(t, 8, co.Severity)
	assert.Equal(t, "Synchrony Bank", co.Creditor)
	assert.Equal(t, "2021-11-03", co.DateLabel)
	require.NotNil(t, co.Amount)
	assert.InDelta(t, 1980.55, *co.Amount, 0.001)
	assert.Greater(t, bk.Severity, co.Severity)
}

func TestParse_BareHeadingIsNotAnItem(t *testing.T) {
	out := newTestParser().Parse("Collections\nCollection Accounts:\n")
	assert.Empty(t, out.NegativeItems)
}

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"04/12/1985":      "1985-04-12",
		"4/2/1985":        "1985-04-02",
		"06-01-2015":      "2015-06-01",
		"2015-06-01":      "2015-06-01",
		"03/15/19":        "2019-03-15",
		"January 5, 2020": "2020-01-05",
		"Jan. 5, 2020":    "2020-01-05",
		"SEPT 9, 2021":    "2021-09-09",
		"02/30/2020":      "",
		"13/01/2020":      "",
		"March 2020":      "",
		"":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDate(in), in)
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"$1,250.00": 1250,
		"1250":      1250,
		"$ 75.5":    75.5,
		"(45.10)":   -45.10,
		"USD 300":   300,
	}
	for in, want := range cases {
		got := ParseAmount(in)
		require.NotNil(t, got, in)
		assert.InDelta(t, want, *got, 0.001, in)
	}
	assert.Nil(t, ParseAmount(""))
	assert.Nil(t, ParseAmount("n/a"))
	assert.Nil(t, ParseAmount("$"))
}

func TestWithWindowLinesBoundsRecordFields(t *testing.T) {
	text := "Citi Account 12345678\nnotes\nnotes\nBalance $900"
	narrow := New(WithWindowLines(1)).Parse(text)
	require.Len(t, narrow.Accounts, 1)
	assert.Nil(t, narrow.Accounts[0].Balance)

	wide := New(WithWindowLines(5)).Parse(text)
	require.Len(t, wide.Accounts, 1)
	require.NotNil(t, wide.Accounts[0].Balance)
	assert.InDelta(t, 900.0, *wide.Accounts[0].Balance, 0.001)
}

func TestParse_InquiryOnHeadingLine(t *testing.T) {
	out := newTestParser().Parse("Inquiries: Capital One 01/15/2024")
	require.Len(t, out.Inquiries, 1)
	assert.Equal(t, "Capital One", out.Inquiries[0].Inquirer)
	assert.Equal(t, "2024-01-15", out.Inquiries[0].InquiryDate)

	text := `Hard Inquiries: Discover Financial 02/01/2024
Ally Bank 03/10/2024`
	out = newTestParser().Parse(text)
	require.Len(t, out.Inquiries, 2)
	assert.Equal(t, InquiryHard, out.Inquiries[0].InquiryType)
	assert.Equal(t, "Ally Bank", out.Inquiries[1].Inquirer)
	assert.Equal(t, InquiryHard, out.Inquiries[1].InquiryType)

	out = newTestParser().Parse("Inquiries: 2\nChase Bank 04/04/2024")
	assert.Empty(t, out.Inquiries, "a count line does not open a section")
}
