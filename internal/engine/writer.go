package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"

	"query5/internal/models"
)

// FormatRow renders one output line without the trailing newline:
// nation|revenue with exactly two fraction digits.
func FormatRow(r models.NationRevenue) string {
	return r.Nation + "|" + strconv.FormatFloat(r.Revenue, 'f', 2, 64)
}

// WriteResult writes one line per nation to path. The file is written to a
// temporary sibling and renamed into place, so path never holds partial output.
func WriteResult(path string, res *models.Result) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, row := range res.Rows {
		if _, err = w.WriteString(FormatRow(row)); err != nil {
			return err
		}
		if err = w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
