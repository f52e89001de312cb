package types

// StatusPresent is the only status this system ever writes.
const StatusPresent = "Present"

// Record is one row of the attendance table (Name, Date, Time, Status).
type Record struct {
	Name   string
	Date   string // 2006-01-02
	Time   string // 15:04:05
	Status string
}

// DaySummary aggregates one calendar date of attendance.
type DaySummary struct {
	Date    string
	Total   int
	Present []string // distinct names in arrival order
}
