package models

// Expense represents one payment made by a member on behalf of several.
//
// ID, CreatedBy and CreatedAt are immutable once the expense exists.
// Title, amount and date are never edited in place either: the app deletes
// and re-creates the expense instead, which keeps remote array-union
// semantics trivial.
type Expense struct {
	// ID is the unique identifier of the expense.
	ID string `json:"id"`

	// Title describes the expense (e.g. "Dinner").
	Title string `json:"title"`

	// Amount is the amount paid, always positive.
	Amount float64 `json:"amount"`

	// PaidBy is the member ID of the payer.
	PaidBy string `json:"paidBy"`

	// SplitAmong lists the member IDs sharing the expense. It need not
	// include PaidBy.
	SplitAmong []string `json:"splitAmong"`

	// Date is the user-assigned date of the expense in unix milliseconds.
	// It may differ from CreatedAt.
	Date int64 `json:"date"`

	// CreatedBy is the member ID of whoever recorded the expense.
	CreatedBy string `json:"createdBy"`

	// CreatedAt is when the expense was recorded, unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// Splits reports whether the given member ID takes part in the split.
func (e Expense) Splits(memberID string) bool {
	for _, id := range e.SplitAmong {
		if id == memberID {
			return true
		}
	}
	return false
}
