package policy

import (
	"sort"
	"strings"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
)

// AttributeKey is a recognized subject attribute name
type AttributeKey string

const (
	AttrMaxRefundAmount  AttributeKey = "max_refund_amount"
	AttrMaxCashoutAmount AttributeKey = "max_cashout_amount"
	AttrMaxCashinAmount  AttributeKey = "max_cashin_amount"
	AttrDailyLimit       AttributeKey = "daily_limit"
	AttrRefundMinutes    AttributeKey = "refund_minutes"
	AttrAllowedTills     AttributeKey = "allowed_tills"
	AttrAllowedStores    AttributeKey = "allowed_stores"
	AttrAllowedAgents    AttributeKey = "allowed_agents"
	AttrAllowedChannels  AttributeKey = "allowed_channels"
	AttrDeviceBinding    AttributeKey = "device_binding"
)

var attributeWhitelist = map[AttributeKey]struct{}{
	AttrMaxRefundAmount:  {},
	AttrMaxCashoutAmount: {},
	AttrMaxCashinAmount:  {},
	AttrDailyLimit:       {},
	AttrRefundMinutes:    {},
	AttrAllowedTills:     {},
	AttrAllowedStores:    {},
	AttrAllowedAgents:    {},
	AttrAllowedChannels:  {},
	AttrDeviceBinding:    {},
}

// IsAllowedAttribute reports whether name is on the subject attribute whitelist
func IsAllowedAttribute(name string) bool {
	_, ok := attributeWhitelist[AttributeKey(name)]
	return ok
}

// AllowedAttributes lists the whitelist in sorted order
func AllowedAttributes() []string {
	out := make([]string, 0, len(attributeWhitelist))
	for k := range attributeWhitelist {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Attributes is a subject attribute bag keyed by whitelisted names
type Attributes map[string]interface{}

// NewAttributes validates raw against the whitelist. Unknown keys are rejected here so
// that malformed subjects fail before reaching the engine.
func NewAttributes(raw map[string]interface{}) (Attributes, error) {
	attrs := Attributes(raw)
	if unknown := attrs.Unknown(); len(unknown) > 0 {
		return nil, apperror.New(apperror.CodeValidation, "unrecognized subject attributes: "+strings.Join(unknown, ",")).
			WithDetail("reasonCodes", []string{ReasonAttributeNotAllowed}).
			WithDetail("attributes", unknown)
	}
	return attrs, nil
}

// Unknown returns the keys that are not whitelisted, sorted
func (a Attributes) Unknown() []string {
	var unknown []string
	for k := range a {
		if !IsAllowedAttribute(k) {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (a Attributes) Get(key string) (interface{}, bool) {
	v, ok := a[key]
	return v, ok
}
