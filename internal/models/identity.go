package models

import "fmt"

// AccountType distinguishes the two sides of the marketplace
type AccountType string

const (
	AccountTypeDriver AccountType = "driver"
	AccountTypeShop   AccountType = "shop"
)

// Valid reports whether t is one of the known account types
func (t AccountType) Valid() bool {
	return t == AccountTypeDriver || t == AccountTypeShop
}

// ParseAccountType converts a raw string into an AccountType
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown account type %q", s)
	}
	return t, nil
}

// Identity addresses sessions, channels and broadcasts
type Identity struct {
	AccountID   string      `json:"account_id"`
	AccountType AccountType `json:"account_type"`
}

func (i Identity) String() string {
	return string(i.AccountType) + ":" + i.AccountID
}

// ShopIdentity is shorthand for the identity of a shop account
func ShopIdentity(shopID string) Identity {
	return Identity{AccountID: shopID, AccountType: AccountTypeShop}
}

// DriverIdentity is shorthand for the identity of a driver account
func DriverIdentity(driverID string) Identity {
	return Identity{AccountID: driverID, AccountType: AccountTypeDriver}
}
