package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// ReadUsers loads the workspace user cache as a user_id → profile map.
// A missing users.parquet is an empty map, not an error, so view
// generation still works on a cache written without user hydration.
func (r *Reader) ReadUsers(ctx context.Context) (map[string]models.User, error) {
	path := filepath.Join(r.root, "users.parquet")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]models.User{}, nil
		}
		return nil, apierr.New(apierr.KindIO, "cache.read_users", "", err)
	}

	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read_users", "", fmt.Errorf("opening %s: %w", path, err))
	}
	defer pf.Close()

	rdr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: readBatchSize}, memory.DefaultAllocator)
	if err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read_users", "", err)
	}
	rr, err := rdr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read_users", "", err)
	}
	defer rr.Release()

	out := make(map[string]models.User)
	for rr.Next() {
		rec := rr.Record()
		n := int(rec.NumRows())
		users := make([]models.User, n)
		for c := 0; c < int(rec.NumCols()); c++ {
			name := rec.Schema().Field(c).Name
			col := rec.Column(c)
			var err error
			switch name {
			case "user_id":
				err = eachString(col, func(i int, v string) { users[i].ID = v })
			case "user_name":
				err = eachStringPtr(col, func(i int, v *string) { users[i].Name = *v })
			case "user_real_name":
				err = eachStringPtr(col, func(i int, v *string) { users[i].RealName = *v })
			case "user_email":
				err = eachStringPtr(col, func(i int, v *string) { users[i].Email = *v })
			case "is_bot":
				err = eachBool(col, func(i int, v bool) { users[i].IsBot = v })
			case "cached_at":
				// informational only; not carried on the model
			default:
				err = fmt.Errorf("unexpected column %q", name)
			}
			if err != nil {
				return nil, apierr.New(apierr.KindSchema, "cache.read_users", "", err)
			}
		}
		for _, u := range users {
			out[u.ID] = u
		}
	}
	if err := rr.Err(); err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read_users", "", err)
	}
	return out, nil
}

// FindUserByName resolves a user id from a (possibly partial) name.
// Passes: exact user_name match, then substring on user_name, then
// substring on user_real_name. Case-insensitive.
func (r *Reader) FindUserByName(ctx context.Context, name string) (string, bool, error) {
	usersByID, err := r.ReadUsers(ctx)
	if err != nil {
		return "", false, err
	}
	needle := strings.ToLower(name)

	for id, u := range usersByID {
		if u.Name != "" && strings.ToLower(u.Name) == needle {
			return id, true, nil
		}
	}
	for id, u := range usersByID {
		if u.Name != "" && strings.Contains(strings.ToLower(u.Name), needle) {
			return id, true, nil
		}
	}
	for id, u := range usersByID {
		if u.RealName != "" && strings.Contains(strings.ToLower(u.RealName), needle) {
			return id, true, nil
		}
	}
	return "", false, nil
}
