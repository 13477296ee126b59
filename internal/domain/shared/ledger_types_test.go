package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebitCredit(t *testing.T) {
	assert.Equal(t, Credit, Debit.Flip())
	assert.Equal(t, Debit, Credit.Flip())
	assert.True(t, Debit.Valid())
	assert.False(t, DebitCredit("debit").Valid())
}

func TestSubledger_Valid(t *testing.T) {
	for _, s := range []Subledger{SubledgerCustomer, SubledgerAgent, SubledgerMerchant, SubledgerSystem} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Subledger("BANK").Valid())
}
