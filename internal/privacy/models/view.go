package models

import "healthcommons/internal/privacy/budget"

// BudgetView is a ledger entry with its derived status and display band.
type BudgetView struct {
	Entry   *LedgerEntry
	Status  budget.Status
	Display budget.DisplayInfo
}

func NewBudgetView(entry *LedgerEntry) *BudgetView {
	status := entry.Status()
	return &BudgetView{Entry: entry, Status: status, Display: budget.GetDisplayInfo(status)}
}
