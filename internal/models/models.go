package models

// Row types hold only the columns the query reads. Keys stay strings so the
// engine can join on whatever surrogate ids the table files carry.

type Region struct {
	RegionKey string
	Name      string
}

type Nation struct {
	NationKey string
	Name      string
	RegionKey string
}

type Customer struct {
	CustKey   string
	NationKey string
}

type Supplier struct {
	SuppKey   string
	NationKey string
}

// Order.OrderDate is the raw date column; empty means the column was missing.
type Order struct {
	OrderKey  string
	CustKey   string
	OrderDate string
}

type LineItem struct {
	OrderKey      string
	SuppKey       string
	ExtendedPrice float64
	Discount      float64
}

// Tables is the in-memory row store for one query execution. Nothing mutates
// it once loading returns.
type Tables struct {
	Regions   []Region
	Nations   []Nation
	Customers []Customer
	Suppliers []Supplier
	Orders    []Order
	LineItems []LineItem
}

// Query describes one execution of the revenue-by-nation query.
type Query struct {
	RegionName string `json:"r_name"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Threads    int    `json:"threads"`
}

type NationRevenue struct {
	Nation  string  `json:"nation"`
	Revenue float64 `json:"revenue"`
}

// Result is the merged aggregate. Rows is sorted by nation name.
type Result struct {
	QueryID string          `json:"query_id"`
	Rows    []NationRevenue `json:"rows"`
	Matched int64           `json:"matched_lineitems"`
	Scanned int64           `json:"scanned_lineitems"`
}

// Totals returns the result as a nation -> revenue map.
func (r *Result) Totals() map[string]float64 {
	out := make(map[string]float64, len(r.Rows))
	for _, row := range r.Rows {
		out[row.Nation] = row.Revenue
	}
	return out
}

type TableStat struct {
	Table   string `json:"table"`
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Skipped int    `json:"skipped"`
	Missing bool   `json:"missing,omitempty"`
}

type LoadSummary struct {
	Tables []TableStat `json:"tables"`
}

// Rows returns the loaded row count for the named table, or 0.
func (s *LoadSummary) Rows(table string) int {
	for _, t := range s.Tables {
		if t.Table == table {
			return t.Rows
		}
	}
	return 0
}
