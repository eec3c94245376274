package engine

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"query5/internal/models"
)

// joinFixture covers every exclusion rule of the join. Querying ASIA over
// [1994-01-01, 1995-01-01) must give INDIA=140 and JAPAN=190.
func joinFixture() *models.Tables {
	return &models.Tables{
		Regions: []models.Region{
			{"0", "AFRICA"}, {"1", "AMERICA"}, {"2", "ASIA"}, {"3", "EUROPE"},
		},
		Nations: []models.Nation{
			{"0", "ALGERIA", "0"},
			{"8", "INDIA", "2"},
			{"12", "JAPAN", "2"},
			{"6", "FRANCE", "3"},
		},
		Customers: []models.Customer{
			{"c1", "8"}, {"c2", "12"}, {"c3", "6"}, {"c4", "99"},
		},
		Suppliers: []models.Supplier{
			{"s1", "8"}, {"s2", "12"}, {"s3", "6"}, {"s4", "99"},
		},
		Orders: []models.Order{
			{"o1", "c1", "1994-03-15"},
			// exactly start_date
			{"o2", "c2", "1994-01-01"},
			// exactly end_date
			{"o3", "c1", "1995-01-01"},
			{"o4", "c3", "1994-06-01"},
			// dangling customer
			{"o5", "c404", "1994-02-02"},
			// no date column
			{"o6", "c1", ""},
			// malformed date
			{"o7", "c1", "1994-05-0"},
			{"o8", "c4", "1994-05-05"},
		},
		LineItems: []models.LineItem{
			// INDIA 90
			{"o1", "s1", 100, 0.1},
			// JAPAN 190
			{"o2", "s2", 200, 0.05},
			// outside date range
			{"o3", "s1", 1000, 0},
			// customer INDIA, supplier JAPAN
			{"o1", "s2", 1000, 0},
			// FRANCE is in EUROPE
			{"o4", "s3", 1000, 0},
			// dangling order
			{"o999", "s1", 1000, 0},
			// dangling supplier
			{"o1", "s999", 1000, 0},
			// order with dangling customer
			{"o5", "s1", 1000, 0},
			// order without date
			{"o6", "s1", 1000, 0},
			// order with malformed date
			{"o7", "s1", 1000, 0},
			// same nation key on both sides, not in nation table
			{"o8", "s4", 1000, 0},
			// INDIA 50
			{"o1", "s1", 50, 0},
		},
	}
}

func asiaQuery(threads int) models.Query {
	return models.Query{
		RegionName: "ASIA",
		StartDate:  "1994-01-01",
		EndDate:    "1995-01-01",
		Threads:    threads,
	}
}

// randomTables builds a dataset with a mix of qualifying and non-qualifying
// line items. The seed fixes the content.
func randomTables(seed int64, numItems int) *models.Tables {
	r := rand.New(rand.NewSource(seed))
	t := &models.Tables{
		Regions: []models.Region{{"0", "AFRICA"}, {"1", "AMERICA"}, {"2", "ASIA"}, {"3", "EUROPE"}, {"4", "MIDDLE EAST"}},
	}
	for n := 0; n < 25; n++ {
		t.Nations = append(t.Nations, models.Nation{
			NationKey: fmt.Sprint(n),
			Name:      fmt.Sprintf("NATION_%02d", n),
			RegionKey: fmt.Sprint(n % 5),
		})
	}
	for c := 0; c < 300; c++ {
		t.Customers = append(t.Customers, models.Customer{CustKey: fmt.Sprint(c), NationKey: fmt.Sprint(r.Intn(25))})
	}
	for s := 0; s < 40; s++ {
		t.Suppliers = append(t.Suppliers, models.Supplier{SuppKey: fmt.Sprint(s), NationKey: fmt.Sprint(r.Intn(25))})
	}
	for o := 0; o < 2000; o++ {
		t.Orders = append(t.Orders, models.Order{
			OrderKey:  fmt.Sprint(o),
			CustKey:   fmt.Sprint(r.Intn(310)), // some dangling
			OrderDate: fmt.Sprintf("199%d-%02d-%02d", 2+r.Intn(6), 1+r.Intn(12), 1+r.Intn(28)),
		})
	}
	for i := 0; i < numItems; i++ {
		t.LineItems = append(t.LineItems, models.LineItem{
			OrderKey:      fmt.Sprint(r.Intn(2050)),
			SuppKey:       fmt.Sprint(r.Intn(42)),
			ExtendedPrice: float64(r.Intn(10000000)) / 100,
			Discount:      float64(r.Intn(11)) / 100,
		})
	}
	return t
}

// writeTableDir writes the tables as .tbl files using the TPC-H column layout.
func writeTableDir(t *testing.T, dir string, tables *models.Tables) {
	t.Helper()
	var b strings.Builder
	write := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+tableExt), []byte(b.String()), 0o644))
		b.Reset()
	}

	for _, r := range tables.Regions {
		fmt.Fprintf(&b, "%s|%s|comment|\n", r.RegionKey, r.Name)
	}
	write(TableRegion)
	for _, n := range tables.Nations {
		fmt.Fprintf(&b, "%s|%s|%s|comment|\n", n.NationKey, n.Name, n.RegionKey)
	}
	write(TableNation)
	for _, c := range tables.Customers {
		fmt.Fprintf(&b, "%s|Customer#%s|addr|%s|phone|0.00|SEGMENT|comment|\n", c.CustKey, c.CustKey, c.NationKey)
	}
	write(TableCustomer)
	for _, s := range tables.Suppliers {
		fmt.Fprintf(&b, "%s|Supplier#%s|addr|%s|phone|0.00|comment|\n", s.SuppKey, s.SuppKey, s.NationKey)
	}
	write(TableSupplier)
	for _, o := range tables.Orders {
		fmt.Fprintf(&b, "%s|%s|O|0.00|%s|1-URGENT|Clerk|0|comment|\n", o.OrderKey, o.CustKey, o.OrderDate)
	}
	write(TableOrders)
	for i, l := range tables.LineItems {
		fmt.Fprintf(&b, "%s|1|%s|%d|1|%.2f|%.2f|0.00|N|O|1996-01-01|1996-01-01|1996-01-01|NONE|AIR|comment|\n",
			l.OrderKey, l.SuppKey, i, l.ExtendedPrice, l.Discount)
	}
	write(TableLineItem)
}
