package engine

import (
	"errors"
	"fmt"
	"strings"

	"query5/internal/models"
)

var (
	ErrRegionNotFound   = errors.New("region not found")
	ErrAmbiguousRegion  = errors.New("region name matches more than one region")
	ErrInvalidDateRange = errors.New("start date is after end date")
)

// dateWidth is the significant prefix of an order date.
const dateWidth = 10

// ResolveRegion scans the region table for name and returns its key. When
// several rows carry the name the last one wins unless strict is set, in which
// case ErrAmbiguousRegion is returned. dups reports every matching key.
func ResolveRegion(regions []models.Region, name string, strict bool) (key string, dups []string, err error) {
	name = strings.TrimSpace(name)
	for _, r := range regions {
		if r.Name == name {
			dups = append(dups, r.RegionKey)
		}
	}
	switch {
	case len(dups) == 0:
		return "", nil, fmt.Errorf("%w: %q", ErrRegionNotFound, name)
	case len(dups) > 1 && strict:
		return "", dups, fmt.Errorf("%w: %q has keys %s", ErrAmbiguousRegion, name, strings.Join(dups, ","))
	}
	return dups[len(dups)-1], dups, nil
}

// inDateRange reports whether the order date prefix lies in [start, end).
// Dates shorter than the significant prefix are malformed and never match.
func inDateRange(date, start, end string) bool {
	if len(date) < dateWidth {
		return false
	}
	prefix := date[:dateWidth]
	return prefix >= start && prefix < end
}

// BuildIndexes performs one pass over each dimension table and one pass over
// the order table. Duplicate keys overwrite earlier rows.
func BuildIndexes(t *models.Tables, targetRegion, startDate, endDate string) *Indexes {
	dict := newNationDict(len(t.Nations))

	for _, n := range t.Nations {
		id := dict.intern(n.NationKey)
		e := &dict.entries[id]
		e.Name = n.Name
		e.RegionKey = n.RegionKey
		e.Known = true
	}

	custNation := make(map[string]int32, len(t.Customers))
	for _, c := range t.Customers {
		custNation[c.CustKey] = dict.intern(c.NationKey)
	}
	suppNation := make(map[string]int32, len(t.Suppliers))
	for _, s := range t.Suppliers {
		suppNation[s.SuppKey] = dict.intern(s.NationKey)
	}

	orderCust := make(map[string]string)
	for _, o := range t.Orders {
		if inDateRange(o.OrderDate, startDate, endDate) {
			orderCust[o.OrderKey] = o.CustKey
		}
	}

	for i := range dict.entries {
		e := &dict.entries[i]
		e.InTarget = e.Known && e.RegionKey == targetRegion
	}

	return &Indexes{
		Nations:      dict.entries,
		CustNation:   custNation,
		SuppNation:   suppNation,
		OrderCust:    orderCust,
		TargetRegion: targetRegion,
	}
}
