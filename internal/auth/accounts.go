package auth

import "sync"

type Account struct {
	ID           int    `json:"id"`
	Login        string `json:"login"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Handle       string `json:"handle"`
	Email        string `json:"email"`
	Bio          string `json:"bio"`
}

// Accounts is the in-memory account registry. Self-service signup is
// out of scope, accounts are provisioned at startup.
type Accounts struct {
	mutex   sync.RWMutex
	byID    map[int]Account
	byLogin map[string]Account
}

func NewAccounts(accounts ...Account) *Accounts {
	a := &Accounts{
		byID:    map[int]Account{},
		byLogin: map[string]Account{},
	}
	for _, acc := range accounts {
		a.byID[acc.ID] = acc
		a.byLogin[acc.Login] = acc
	}
	return a
}

func (a *Accounts) ByLogin(login string) (Account, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	acc, ok := a.byLogin[login]
	return acc, ok
}

func (a *Accounts) ByID(id int) (Account, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	acc, ok := a.byID[id]
	return acc, ok
}

// DemoAccounts returns the two accounts provisioned for demo
// deployments.
func DemoAccounts() []Account {
	return []Account{
		{
			ID:           1,
			Login:        "demo@devfest.app",
			PasswordHash: "$2b$14$FaE4MEWUQ9Yx0SKhJbklP.92QjUTYEhBikJoj09M9gNse.kcxVAvy", // DemoPass123!
			Name:         "Aisha Patel",
			DisplayName:  "Aisha",
			Handle:       "@aisha",
			Email:        "demo@devfest.app",
			Bio:          "Strength + mobility. Learning to love rest days.",
		},
		{
			ID:           2,
			Login:        "user",
			PasswordHash: "$2b$14$5ewe52mJpwwNso0UrtFxlucOVkATzqDUVZZJZ2izsx4gcMPLV.s.u", // pass
			Name:         "Pork Sandwich",
			DisplayName:  "Pork",
			Handle:       "@pork",
			Email:        "user",
			Bio:          "Pork-fueled lifts and sandwich-fueled recovery.",
		},
	}
}
