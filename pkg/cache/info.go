package cache

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/apache/arrow-go/v18/parquet/file"
)

// PartitionStat describes one on-disk partition file.
type PartitionStat struct {
	Path   string `json:"path"`
	Entity string `json:"entity"`
	Rows   int64  `json:"row_count"`
	Bytes  int64  `json:"size_bytes"`
}

// Info summarizes the whole dataset.
type Info struct {
	Partitions []PartitionStat `json:"partitions"`
	TotalRows  int64           `json:"total_rows"`
	TotalBytes int64           `json:"total_size_bytes"`
}

// PartitionInfo enumerates every partition file under the cache root.
// Unreadable files are skipped, matching the read paths' tolerance for a
// partially synced cache.
func (r *Reader) PartitionInfo() (*Info, error) {
	info := &Info{}

	add := func(entity, path string) {
		st, err := os.Stat(path)
		if err != nil {
			return
		}
		rows, err := parquetRowCount(path)
		if err != nil {
			r.log.Warn().Str("path", path).Err(err).Msg("skipping unreadable partition")
			return
		}
		info.Partitions = append(info.Partitions, PartitionStat{
			Path:   path,
			Entity: entity,
			Rows:   rows,
			Bytes:  st.Size(),
		})
	}

	for _, entity := range []string{"messages", "issue_tickets"} {
		pattern := filepath.Join(r.root, entity, "dt=*", "*")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			st, err := os.Stat(m)
			if err != nil {
				continue
			}
			if st.IsDir() {
				add(entity, filepath.Join(m, "data.parquet"))
			} else if filepath.Base(m) == "data.parquet" {
				add(entity, m)
			}
		}
	}
	add("users", filepath.Join(r.root, "users.parquet"))

	sort.Slice(info.Partitions, func(i, j int) bool { return info.Partitions[i].Path < info.Partitions[j].Path })
	for _, p := range info.Partitions {
		info.TotalRows += p.Rows
		info.TotalBytes += p.Bytes
	}
	return info, nil
}

func parquetRowCount(path string) (int64, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return 0, err
	}
	defer pf.Close()
	return pf.NumRows(), nil
}
