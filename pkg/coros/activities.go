package coros

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"time"

	apperrors "github.com/dlenski/corostc/pkg/coros/errors"
)

// ListOptions bounds an activity listing. A zero StartDay/EndDay leaves that
// side unbounded; bounds are day-granular.
type ListOptions struct {
	// PageSize is the number of records requested per page (default 100).
	PageSize int

	StartDay time.Time
	EndDay   time.Time
}

const defaultPageSize = 100

// dayParam is the vendor's day-filter wire format.
func dayParam(t time.Time) string {
	return t.Format("20060102")
}

type activityPage struct {
	Count    int64             `json:"count"`
	DataList []json.RawMessage `json:"dataList"`
}

// ListActivities returns a lazy sequence of normalized activity records in
// vendor order. Each call restarts pagination from page 1. The sequence
// terminates with an error if the vendor-reported total changes between
// pages: a partially merged result would be silently wrong.
func (c *Client) ListActivities(ctx context.Context, opts ListOptions) iter.Seq2[*Activity, error] {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return func(yield func(*Activity, error) bool) {
		total := int64(-1)
		for page := 1; ; page++ {
			startIndex := int64(pageSize) * int64(page-1)
			endIndex := startIndex + int64(pageSize) - 1

			c.logger.V(1).Info("fetching page of activities",
				"page", page, "from", startIndex, "through", endIndex)

			params := map[string]string{
				"size":       strconv.Itoa(pageSize),
				"pageNumber": strconv.Itoa(page),
			}
			if !opts.StartDay.IsZero() {
				params["startDay"] = dayParam(opts.StartDay)
			}
			if !opts.EndDay.IsZero() {
				params["endDay"] = dayParam(opts.EndDay)
			}

			data, err := c.get(ctx, "/activity/query", params)
			if err != nil {
				yield(nil, err)
				return
			}

			var pg activityPage
			if err := json.Unmarshal(data, &pg); err != nil {
				yield(nil, apperrors.New(apperrors.ErrCodeAPIError, "malformed activity page", err))
				return
			}

			if total >= 0 && total != pg.Count {
				yield(nil, apperrors.New(apperrors.ErrCodeListInconsistent,
					fmt.Sprintf("total activity count changed from %d to %d while fetching activities", total, pg.Count), nil))
				return
			}
			total = pg.Count

			for _, rawRec := range pg.DataList {
				raw := make(map[string]any)
				dec := json.NewDecoder(bytes.NewReader(rawRec))
				dec.UseNumber()
				if err := dec.Decode(&raw); err != nil {
					yield(nil, apperrors.New(apperrors.ErrCodeAPIError, "malformed activity record", err))
					return
				}
				a := normalizeActivity(raw, func(code int) {
					c.logger.Info("unknown sport type code, leaving it alone", "sportType", code)
				})
				if !yield(a, nil) {
					return
				}
			}

			if startIndex+int64(pageSize) >= total || len(pg.DataList) == 0 {
				return
			}
		}
	}
}

// LatestActivity fetches the most recent activity, or nil when the account
// has none.
func (c *Client) LatestActivity(ctx context.Context) (*Activity, error) {
	for a, err := range c.ListActivities(ctx, ListOptions{PageSize: 1}) {
		return a, err
	}
	return nil, nil
}
