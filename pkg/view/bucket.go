package view

import (
	"fmt"
	"sort"
	"time"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// Bucket granularities for merged multi-channel views.
const (
	BucketHour = "hour"
	BucketDay  = "day"
	BucketNone = "none"
)

// TimeBucket groups one interval's rows by channel.
type TimeBucket struct {
	Start     time.Time
	End       time.Time
	ByChannel map[string][]models.Row
	Total     int
}

// Channels returns the bucket's channel names, sorted.
func (b *TimeBucket) Channels() []string {
	names := make([]string, 0, len(b.ByChannel))
	for name := range b.ByChannel {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Header renders the bucket's interval line.
func (b *TimeBucket) Header() string {
	if b.Start.Equal(b.End) || b.End.Sub(b.Start) < time.Hour {
		return fmt.Sprintf("⏰ %s (%d messages across %d channels)",
			b.Start.UTC().Format("2006-01-02 15:04"), b.Total, len(b.ByChannel))
	}
	return fmt.Sprintf("⏰ %s – %s (%d messages across %d channels)",
		b.Start.UTC().Format("2006-01-02 15:04"),
		b.End.UTC().Format("15:04"),
		b.Total, len(b.ByChannel))
}

// BucketRows groups rows into hour or day buckets; BucketNone yields one
// bucket spanning everything. Rows with unparseable timestamps are
// dropped. Buckets come back in chronological order.
func BucketRows(rows []models.Row, bucketType string) ([]TimeBucket, error) {
	switch bucketType {
	case BucketHour, BucketDay, BucketNone:
	default:
		return nil, fmt.Errorf("invalid bucket type %q", bucketType)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byKey := make(map[time.Time]*TimeBucket)
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			continue
		}
		ts = ts.UTC()

		var start, end time.Time
		switch bucketType {
		case BucketHour:
			start = ts.Truncate(time.Hour)
			end = start.Add(time.Hour - time.Second)
		case BucketDay:
			start = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
			end = start.Add(24*time.Hour - time.Second)
		case BucketNone:
			start = time.Time{}
		}

		bucket, ok := byKey[start]
		if !ok {
			bucket = &TimeBucket{Start: start, End: end, ByChannel: make(map[string][]models.Row)}
			byKey[start] = bucket
		}
		channel := row.ChannelName
		if channel == "" {
			channel = "unknown"
		}
		bucket.ByChannel[channel] = append(bucket.ByChannel[channel], row)
		bucket.Total++

		if bucketType == BucketNone {
			if bucket.Total == 1 || ts.Before(bucket.Start) {
				bucket.Start = ts
			}
			if ts.After(bucket.End) {
				bucket.End = ts
			}
		}
	}

	buckets := make([]TimeBucket, 0, len(byKey))
	for _, b := range byKey {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets, nil
}
