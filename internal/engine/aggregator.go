package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"query5/internal/models"
)

// cancelCheckEvery is how many line items a worker scans between context checks.
const cancelCheckEvery = 8192

type aggStats struct {
	Rev   float64
	Trans int64
}

// Chunk is a half-open range [Start, End) of line item rows.
type Chunk struct {
	Start, End int
}

// Partition splits n rows into threads contiguous chunks of n/threads rows,
// the last chunk absorbing the remainder. When threads <= 0 or there are
// fewer rows than threads the whole table is one chunk.
func Partition(n, threads int) []Chunk {
	if threads <= 0 {
		return []Chunk{{0, n}}
	}
	chunkSize := n / threads
	if chunkSize == 0 {
		return []Chunk{{0, n}}
	}
	chunks := make([]Chunk, threads)
	for i := 0; i < threads; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == threads-1 {
			end = n
		}
		chunks[i] = Chunk{start, end}
	}
	return chunks
}

// partialAgg is one worker's private accumulator, indexed by nation id.
type partialAgg struct {
	stats   []aggStats
	scanned int64
	matched int64
	err     error
}

// scanChunk evaluates the join chain for every line item in c:
// order -> customer -> customer nation, supplier -> supplier nation, same
// nation, nation in target region. A miss at any step drops the row.
func scanChunk(ctx context.Context, items []models.LineItem, c Chunk, idx *Indexes) *partialAgg {
	p := &partialAgg{stats: make([]aggStats, len(idx.Nations))}
	nations := idx.Nations

	for j := c.Start; j < c.End; j++ {
		if (j-c.Start)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				p.err = err
				return p
			}
		}
		li := &items[j]
		p.scanned++

		custKey, ok := idx.OrderCust[li.OrderKey]
		if !ok {
			continue
		}
		custNat, ok := idx.CustNation[custKey]
		if !ok {
			continue
		}
		suppNat, ok := idx.SuppNation[li.SuppKey]
		if !ok {
			continue
		}
		if custNat != suppNat || !nations[custNat].InTarget {
			continue
		}

		p.stats[custNat].Rev += li.ExtendedPrice * (1 - li.Discount)
		p.stats[custNat].Trans++
		p.matched++
	}
	return p
}

// mergePartials folds worker accumulators into one map keyed by nation name.
// It runs on a single goroutine after every worker has finished. Nations with
// no qualifying line item are absent from the result.
func mergePartials(partials []*partialAgg, nations []NationEntry) map[string]*aggStats {
	final := make(map[string]*aggStats)
	for _, p := range partials {
		for id := range p.stats {
			local := p.stats[id]
			if local.Trans == 0 {
				continue
			}
			name := nations[id].Name
			shared, ok := final[name]
			if !ok {
				shared = &aggStats{}
				final[name] = shared
			}
			shared.Rev += local.Rev
			shared.Trans += local.Trans
		}
	}
	return final
}

// Engine runs the revenue-by-nation query over an in-memory row store.
type Engine struct {
	// StrictRegion rejects region names that match more than one region.
	StrictRegion bool
	logger       *zap.Logger
}

func NewEngine(logger *zap.Logger, strictRegion bool) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{StrictRegion: strictRegion, logger: logger}
}

// Execute resolves the region, builds the indexes, scans the line items with
// one pooled worker per chunk and merges the worker results.
func (e *Engine) Execute(ctx context.Context, t *models.Tables, q models.Query) (*models.Result, error) {
	t0 := time.Now()
	queryID := uuid.NewString()
	log := e.logger.With(zap.String("query_id", queryID))

	if q.StartDate > q.EndDate {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidDateRange, q.StartDate, q.EndDate)
	}

	// 1. Region (fail before any indexing)
	targetRegion, dups, err := ResolveRegion(t.Regions, q.RegionName, e.StrictRegion)
	if err != nil {
		log.Error("region resolution failed", zap.String("r_name", q.RegionName), zap.Error(err))
		return nil, err
	}
	if len(dups) > 1 {
		log.Warn("region name is not unique, using last match",
			zap.String("r_name", q.RegionName), zap.Strings("keys", dups))
	}

	// 2. Indexes (fully built before workers start)
	idx := BuildIndexes(t, targetRegion, q.StartDate, q.EndDate)
	log.Info("filtered orders in date range",
		zap.Int("orders", len(idx.OrderCust)),
		zap.String("start_date", q.StartDate),
		zap.String("end_date", q.EndDate))

	// 3. Parallel scan
	chunks := Partition(len(t.LineItems), q.Threads)
	log.Debug("partitioned line items",
		zap.Int("lineitems", len(t.LineItems)),
		zap.Int("threads", q.Threads),
		zap.Int("chunks", len(chunks)))

	partials, err := e.scan(ctx, t.LineItems, chunks, idx)
	if err != nil {
		log.Warn("query aborted", zap.Error(err))
		return nil, err
	}

	// 4. Merge phase (reducer)
	final := mergePartials(partials, idx.Nations)

	res := &models.Result{
		QueryID: queryID,
		Rows:    make([]models.NationRevenue, 0, len(final)),
	}
	for _, p := range partials {
		res.Scanned += p.scanned
		res.Matched += p.matched
	}
	for name, stats := range final {
		res.Rows = append(res.Rows, models.NationRevenue{Nation: name, Revenue: stats.Rev})
	}
	sort.Slice(res.Rows, func(i, j int) bool { return res.Rows[i].Nation < res.Rows[j].Nation })

	log.Info("query complete",
		zap.Int("nations", len(res.Rows)),
		zap.Int64("matched", res.Matched),
		zap.Int("merged_partials", len(partials)),
		zap.Duration("elapsed", time.Since(t0)))
	return res, nil
}

// scan runs one task per chunk on an ants pool and waits for all of them.
// Partials are returned in chunk order.
func (e *Engine) scan(ctx context.Context, items []models.LineItem, chunks []Chunk, idx *Indexes) ([]*partialAgg, error) {
	pool, err := ants.NewPool(len(chunks), ants.WithPanicHandler(func(v interface{}) {
		e.logger.Error("scan worker panicked", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	partials := make([]*partialAgg, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		i, c := i, c
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			partials[i] = scanChunk(ctx, items, c, idx)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}
	wg.Wait()

	for i, p := range partials {
		if p == nil {
			return nil, fmt.Errorf("scan worker for chunk %d did not finish", i)
		}
		if p.err != nil {
			return nil, p.err
		}
	}
	return partials, nil
}
