package engine

// =============================================================================
// EFFECTIVE DATE - When an entry counts for projection and reporting
// =============================================================================

// DateAttributor decides the calendar date an entry is attributed to. One is
// built per account so callers never branch on account kind themselves.
type DateAttributor interface {
	EffectiveDate(e Entry) Date
}

// AttributorFor returns the attributor matching the account's kind.
func AttributorFor(acct Account) DateAttributor {
	if acct.IsCreditCard() {
		return cardAttributor{closingDay: acct.ClosingDay}
	}
	return postingAttributor{}
}

// postingAttributor uses the posting date as is.
type postingAttributor struct{}

func (postingAttributor) EffectiveDate(e Entry) Date { return e.PostedOn }

// cardAttributor attributes settled card entries to their settlement date
// and unsettled ones to the close of the billing cycle they fall in, so they
// land in the month of the invoice the user will actually receive.
type cardAttributor struct {
	closingDay int
}

func (a cardAttributor) EffectiveDate(e Entry) Date {
	if e.IsSettled() {
		if !e.SettledOn.IsZero() {
			return e.SettledOn
		}
		return e.PostedOn
	}
	if a.closingDay < 1 || a.closingDay > 31 {
		return e.PostedOn
	}
	return ClosingDateFor(a.closingDay, e.PostedOn)
}

// Attributors builds one attributor per account. Entries whose account is
// unknown fall back to their posting date.
type Attributors map[AccountID]DateAttributor

func NewAttributors(accounts []Account) Attributors {
	out := make(Attributors, len(accounts))
	for _, a := range accounts {
		out[a.ID] = AttributorFor(a)
	}
	return out
}

func (as Attributors) EffectiveDate(e Entry) Date {
	if a, ok := as[e.AccountID]; ok {
		return a.EffectiveDate(e)
	}
	return e.PostedOn
}
