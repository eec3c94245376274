package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
	"unsafe"

	"github.com/pierrec/lz4"
	"go.uber.org/zap"

	"query5/internal/models"
)

// Table file names under the table directory.
const (
	TableRegion   = "region"
	TableNation   = "nation"
	TableCustomer = "customer"
	TableSupplier = "supplier"
	TableOrders   = "orders"
	TableLineItem = "lineitem"
)

const (
	tableExt = ".tbl"
	lz4Ext   = ".lz4"
)

// --- 1. FIELD PARSERS ---

func unsafeToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func trimField(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

// splitFields cuts a line on '|' and trims every field. A trailing separator
// does not produce an extra empty field.
func splitFields(line []byte, dst [][]byte) [][]byte {
	dst = dst[:0]
	rest := line
	for len(rest) > 0 {
		field, tail, found := bytes.Cut(rest, sep)
		dst = append(dst, trimField(field))
		if !found {
			break
		}
		rest = tail
	}
	return dst
}

var sep = []byte{'|'}

// pow10 holds the powers of ten that are exact in a float64.
var pow10 = [...]float64{1e0, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e10,
	1e11, 1e12, 1e13, 1e14, 1e15, 1e16, 1e17, 1e18, 1e19, 1e20, 1e21, 1e22}

// fastFloat parses "123.45" -> 123.45. Plain decimals with at most 15
// significant digits take the exact fast path; anything else goes through
// strconv.
func fastFloat(b []byte) (float64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	if b[0] == '-' || b[0] == '+' {
		neg = b[0] == '-'
		i++
	}
	var mant uint64
	digits, frac := 0, 0
	seenDot := false
	for ; i < len(b); i++ {
		c := b[i]
		switch {
		case c >= '0' && c <= '9':
			mant = mant*10 + uint64(c-'0')
			digits++
			if seenDot {
				frac++
			}
		case c == '.' && !seenDot:
			seenDot = true
		default:
			f, err := strconv.ParseFloat(unsafeToString(b), 64)
			return f, err == nil
		}
	}
	if digits == 0 {
		return 0, false
	}
	if digits > 15 {
		f, err := strconv.ParseFloat(unsafeToString(b), 64)
		return f, err == nil
	}
	num := float64(mant) / pow10[frac]
	if neg {
		num = -num
	}
	return num, true
}

// --- 2. ROW DECODERS ---
// Each decoder maps positional columns to a typed row. Returning false drops
// the row: a row missing a column the query needs can never join.

func decodeRegion(f [][]byte) (models.Region, bool) {
	// r_regionkey(0) r_name(1)
	if len(f) < 2 {
		return models.Region{}, false
	}
	return models.Region{RegionKey: string(f[0]), Name: string(f[1])}, true
}

func decodeNation(f [][]byte) (models.Nation, bool) {
	// n_nationkey(0) n_name(1) n_regionkey(2)
	if len(f) < 3 {
		return models.Nation{}, false
	}
	return models.Nation{NationKey: string(f[0]), Name: string(f[1]), RegionKey: string(f[2])}, true
}

func decodeCustomer(f [][]byte) (models.Customer, bool) {
	// c_custkey(0) SKIP SKIP c_nationkey(3)
	if len(f) < 4 {
		return models.Customer{}, false
	}
	return models.Customer{CustKey: string(f[0]), NationKey: string(f[3])}, true
}

func decodeSupplier(f [][]byte) (models.Supplier, bool) {
	// s_suppkey(0) SKIP SKIP s_nationkey(3)
	if len(f) < 4 {
		return models.Supplier{}, false
	}
	return models.Supplier{SuppKey: string(f[0]), NationKey: string(f[3])}, true
}

func decodeOrder(f [][]byte) (models.Order, bool) {
	// o_orderkey(0) o_custkey(1) SKIP SKIP o_orderdate(4)
	if len(f) < 2 {
		return models.Order{}, false
	}
	o := models.Order{OrderKey: string(f[0]), CustKey: string(f[1])}
	if len(f) > 4 {
		o.OrderDate = string(f[4])
	}
	return o, true
}

func decodeLineItem(f [][]byte) (models.LineItem, bool) {
	// l_orderkey(0) SKIP l_suppkey(2) SKIP SKIP l_extendedprice(5) l_discount(6)
	if len(f) < 7 {
		return models.LineItem{}, false
	}
	price, ok := fastFloat(f[5])
	if !ok {
		return models.LineItem{}, false
	}
	disc, ok := fastFloat(f[6])
	if !ok {
		return models.LineItem{}, false
	}
	return models.LineItem{
		OrderKey:      string(f[0]),
		SuppKey:       string(f[2]),
		ExtendedPrice: price,
		Discount:      disc,
	}, true
}

// --- 3. PARALLEL TABLE PARSER ---

// alignChunk moves start and end forward to the next line boundary.
func alignChunk(content []byte, start, end int) (int, int) {
	if start > len(content) {
		start = len(content)
	}
	if end > len(content) {
		end = len(content)
	}
	if start > 0 {
		if i := bytes.IndexByte(content[start-1:], '\n'); i != -1 {
			start += i
		} else {
			start = len(content)
		}
	}
	if end > 0 && end < len(content) {
		if i := bytes.IndexByte(content[end-1:], '\n'); i != -1 {
			end += i
		} else {
			end = len(content)
		}
	}
	return start, end
}

// parseTable decodes content in newline-aligned byte chunks, one goroutine per
// chunk, and concatenates the rows in file order.
func parseTable[T any](content []byte, numWorkers int, decode func([][]byte) (T, bool)) ([]T, int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunkSize := len(content) / numWorkers
	if chunkSize == 0 {
		numWorkers, chunkSize = 1, len(content)
	}

	parts := make([][]T, numWorkers)
	skipped := make([]int, numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start, end := i*chunkSize, (i+1)*chunkSize
		if i == numWorkers-1 {
			end = len(content)
		}
		start, end = alignChunk(content, start, end)

		wg.Add(1)
		go func(idx int, chunk []byte) {
			defer wg.Done()
			var fields [][]byte
			rows := make([]T, 0, bytes.Count(chunk, []byte{'\n'})+1)

			pos := 0
			for pos < len(chunk) {
				nextPos := len(chunk)
				if j := bytes.IndexByte(chunk[pos:], '\n'); j != -1 {
					nextPos = pos + j
				}
				line := chunk[pos:nextPos]
				pos = nextPos + 1

				if len(trimField(line)) == 0 {
					continue
				}
				fields = splitFields(line, fields)
				row, ok := decode(fields)
				if !ok {
					skipped[idx]++
					continue
				}
				rows = append(rows, row)
			}
			parts[idx] = rows
		}(i, content[start:end])
	}
	wg.Wait()

	total, totalSkipped := 0, 0
	for i := range parts {
		total += len(parts[i])
		totalSkipped += skipped[i]
	}
	out := make([]T, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, totalSkipped
}

// --- 4. MAIN LOADER ---

// Loader reads the six query tables from a directory of '|' delimited files.
// A table whose file cannot be read loads as empty; the failure is logged and
// recorded in the LoadSummary.
type Loader struct {
	Dir     string
	Workers int
	logger  *zap.Logger
}

func NewLoader(dir string, workers int, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Loader{Dir: dir, Workers: workers, logger: logger}
}

// readTableFile returns the raw bytes of <name>.tbl, falling back to an lz4
// compressed <name>.tbl.lz4.
func (l *Loader) readTableFile(name string) ([]byte, string, error) {
	path := filepath.Join(l.Dir, name+tableExt)
	content, err := os.ReadFile(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return content, path, err
	}

	lzPath := path + lz4Ext
	f, lzErr := os.Open(lzPath)
	if lzErr != nil {
		// report the plain path, it is the one users expect
		return nil, path, err
	}
	defer f.Close()
	content, lzErr = io.ReadAll(lz4.NewReader(f))
	return content, lzPath, lzErr
}

func loadInto[T any](l *Loader, name string, workers int, decode func([][]byte) (T, bool), dst *[]T) models.TableStat {
	stat := models.TableStat{Table: name}
	content, path, err := l.readTableFile(name)
	stat.Path = path
	if err != nil {
		l.logger.Warn("could not open table file, loading it as empty",
			zap.String("table", name), zap.String("path", path), zap.Error(err))
		stat.Missing = true
		*dst = nil
		return stat
	}
	rows, skipped := parseTable(content, workers, decode)
	if skipped > 0 {
		l.logger.Debug("dropped incomplete rows",
			zap.String("table", name), zap.Int("skipped", skipped))
	}
	*dst = rows
	stat.Rows = len(rows)
	stat.Skipped = skipped
	return stat
}

// Load reads all tables concurrently. The only error is ctx cancellation.
func (l *Loader) Load(ctx context.Context) (*models.Tables, *models.LoadSummary, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tables := &models.Tables{}
	stats := make([]models.TableStat, 6)

	// dimension tables are small; the fact table gets the full worker count
	jobs := []func(){
		func() { stats[0] = loadInto(l, TableRegion, 1, decodeRegion, &tables.Regions) },
		func() { stats[1] = loadInto(l, TableNation, 1, decodeNation, &tables.Nations) },
		func() { stats[2] = loadInto(l, TableCustomer, l.Workers, decodeCustomer, &tables.Customers) },
		func() { stats[3] = loadInto(l, TableSupplier, l.Workers, decodeSupplier, &tables.Suppliers) },
		func() { stats[4] = loadInto(l, TableOrders, l.Workers, decodeOrder, &tables.Orders) },
		func() { stats[5] = loadInto(l, TableLineItem, l.Workers, decodeLineItem, &tables.LineItems) },
	}
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(run func()) {
			defer wg.Done()
			run()
		}(job)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	summary := &models.LoadSummary{Tables: stats}
	l.logger.Info("data load summary",
		zap.Int("lineitems", len(tables.LineItems)),
		zap.Int("orders", len(tables.Orders)),
		zap.Int("customers", len(tables.Customers)),
		zap.Int("suppliers", len(tables.Suppliers)),
		zap.Int("nations", len(tables.Nations)),
		zap.Int("regions", len(tables.Regions)),
		zap.Duration("elapsed", time.Since(start)))
	return tables, summary, nil
}
