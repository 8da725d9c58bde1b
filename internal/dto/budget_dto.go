package dto

// BudgetWindow is spend against one limit. Amounts are minor units.
type BudgetWindow struct {
	Limit       int64 `json:"limit"`
	Spent       int64 `json:"spent"`
	Remaining   int64 `json:"remaining"`
	PercentUsed int   `json:"percent_used"`
}

// BudgetStatus reports monthly and daily spend.
type BudgetStatus struct {
	Monthly BudgetWindow `json:"monthly"`
	Daily   BudgetWindow `json:"daily"`
}

// ChartPoint is one point of a dashboard time series.
type ChartPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}
