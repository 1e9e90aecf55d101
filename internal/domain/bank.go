package domain

import "strings"

// Bank identifies the issuer of an uploaded statement.
type Bank string

const (
	BankDBS  Bank = "DBS"
	BankCITI Bank = "CITI"
	BankCIMB Bank = "CIMB"
	BankUOB  Bank = "UOB"
	BankHSBC Bank = "HSBC"

	// BankUnknown is stored when the model could not name a supported bank.
	BankUnknown Bank = "No"
)

var knownBanks = map[string]Bank{
	"DBS":  BankDBS,
	"CITI": BankCITI,
	"CIMB": BankCIMB,
	"UOB":  BankUOB,
	"HSBC": BankHSBC,
}

// ParseBank maps free text to a supported bank, falling back to BankUnknown.
func ParseBank(s string) Bank {
	if b, ok := knownBanks[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return b
	}
	return BankUnknown
}

// Known reports whether b is one of the supported issuers.
func (b Bank) Known() bool {
	_, ok := knownBanks[string(b)]
	return ok
}
