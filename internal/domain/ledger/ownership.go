package ledger

import "context"

// AccountOwner links a ledger account to the principal it belongs to
type AccountOwner struct {
	AccountID     string
	PrincipalID   string
	PrincipalType string
}

// AccountOwnerRepository resolves who owns an account. GetOwner returns
// ErrAccountOwnerNotFound for accounts without a registered owner.
type AccountOwnerRepository interface {
	GetOwner(ctx context.Context, accountID string) (*AccountOwner, error)
}

// ErrAccountOwnerNotFound indicates an account with no registered owner
type ErrAccountOwnerNotFound struct {
	AccountID string
}

func (e ErrAccountOwnerNotFound) Error() string {
	return "no owner registered for account: " + e.AccountID
}
