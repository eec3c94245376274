package engine

// Indexes holds the hash lookups built from the dimension tables for one
// query. Nation keys are dictionary encoded (key -> int32 id) so the scan
// workers can accumulate into flat arrays instead of maps.
//
// Nothing writes to an Indexes value once BuildIndexes returns, so any number
// of scan workers may read it concurrently.
type Indexes struct {
	// Dictionary (ID -> nation). Every nation key seen in the nation,
	// customer or supplier table gets an id; ids of keys absent from the
	// nation table have Known=false.
	Nations []NationEntry

	// Lookups keyed by the raw string keys of the table files.
	CustNation map[string]int32  // c_custkey -> nation id
	SuppNation map[string]int32  // s_suppkey -> nation id
	OrderCust  map[string]string // o_orderkey -> o_custkey, date filtered

	TargetRegion string
}

type NationEntry struct {
	Key       string
	Name      string
	RegionKey string
	Known     bool // present in nation table
	InTarget  bool // Known && RegionKey == TargetRegion
}

// nationDict assigns dense ids to nation keys.
type nationDict struct {
	ids     map[string]int32
	entries []NationEntry
}

func newNationDict(capHint int) *nationDict {
	return &nationDict{
		ids:     make(map[string]int32, capHint),
		entries: make([]NationEntry, 0, capHint),
	}
}

func (d *nationDict) intern(key string) int32 {
	if id, ok := d.ids[key]; ok {
		return id
	}
	id := int32(len(d.entries))
	d.entries = append(d.entries, NationEntry{Key: key})
	d.ids[key] = id
	return id
}
