package models

type Account struct {
	ID          string      `json:"id" db:"id"`
	Email       string      `json:"email" db:"email"`
	Password    string      `json:"-" db:"password"` // Never return password in JSON
	Name        string      `json:"name" db:"name"`
	AccountType AccountType `json:"account_type" db:"account_type"` // "driver" or "shop"
	CreatedAt   int64       `json:"created_at" db:"created_at"`
	UpdatedAt   int64       `json:"updated_at" db:"updated_at"`
}

type AccountResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	AccountType AccountType `json:"account_type"`
	CreatedAt   int64       `json:"created_at"`
}

func (a *Account) ToAccountResponse() AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		AccountType: a.AccountType,
		CreatedAt:   a.CreatedAt,
	}
}

func (a *Account) Identity() Identity {
	return Identity{AccountID: a.ID, AccountType: a.AccountType}
}
