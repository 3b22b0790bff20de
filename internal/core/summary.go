package core

// FundAmount is an amount aggregated under one fund name.
type FundAmount struct {
	Fund   FundName `json:"fund"`
	Amount int64    `json:"amount"`
}

// BranchRollup summarises a branch's records over a period.
type BranchRollup struct {
	BranchID        string `json:"branchId"`
	TotalIncome     int64  `json:"totalIncome"`
	ServiceCount    int    `json:"serviceCount"`
	AttendanceTotal int64  `json:"attendanceTotal"`
}

// PeriodSummary is the consolidated view across branches.
type PeriodSummary struct {
	From          Date                    `json:"from"`
	To            Date                    `json:"to"`
	TotalBranches int                     `json:"totalBranches"`
	TotalServices int                     `json:"totalServices"`
	TotalAmount   int64                   `json:"totalAmount"`
	TotalPresent  int64                   `json:"totalAttendance"`
	Branches      map[string]BranchRollup `json:"branches"`
	ByFund        []FundAmount            `json:"byFund"`
}
