package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
)

// periodFormats whitelists the only time_format values the time-series
// query accepts, each mapped to a fixed Postgres TO_CHAR literal. spec.md
// §9 flags the source's time_format as a bound parameter inside TO_CHAR,
// which most drivers (including go-pg) will not substitute correctly;
// resolved here by never binding the user-supplied value at all — only a
// value already present in this map reaches the query, as a literal this
// code chose, not one the caller supplied.
var periodFormats = map[string]string{
	"hourly": "YYYY-MM-DD HH24:00",
	"daily":  "YYYY-MM-DD",
	"weekly": "IYYY-IW",
}

// Store is the append-only invocation-record store (spec §1's external
// "metric store"), grounded on the teacher's go-pg query style
// (session/repo/pg.go's Where/Order/Limit chains).
type Store struct {
	db *pg.DB
}

func NewStore(db *pg.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema() error {
	return s.db.Model(&InvocationModel{}).CreateTable(&orm.CreateTableOptions{IfNotExists: true})
}

// Save persists exactly one record per invocation attempt (spec §3
// invariant). Errors are the caller's to decide whether to log-and-continue
// or propagate; the Invoker logs and continues (spec §7
// MetricPersistFailure).
func (s *Store) Save(ctx context.Context, r *InvocationRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	m := toModel(r)
	_, err := s.db.Model(m).Insert()
	return err
}

func (s *Store) ListByFunction(ctx context.Context, functionID int64, limit int) ([]*InvocationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []InvocationModel
	if err := s.db.Model(&models).
		Where("function_id = ?", functionID).
		Order("timestamp DESC").
		Limit(limit).
		Select(); err != nil {
		return nil, err
	}
	out := make([]*InvocationRecord, 0, len(models))
	for i := range models {
		out = append(out, fromModel(&models[i]))
	}
	return out, nil
}

// Summary aggregates over the last `days` days for one function, or across
// all functions when functionID is nil.
func (s *Store) Summary(ctx context.Context, functionID *int64, days int) (*Summary, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	q := s.db.Model((*InvocationModel)(nil)).
		ColumnExpr("count(*) AS invocation_count").
		ColumnExpr("count(*) FILTER (WHERE status_code = 0) AS success_count").
		ColumnExpr("count(*) FILTER (WHERE status_code != 0) AS error_count").
		ColumnExpr("coalesce(avg(execution_time_ms), 0) AS avg_execution_ms").
		ColumnExpr("coalesce(avg(memory_usage_mb), 0) AS avg_memory_mb").
		Where("timestamp >= ?", since)
	if functionID != nil {
		q = q.Where("function_id = ?", *functionID)
	}

	var row struct {
		InvocationCount int64
		SuccessCount    int64
		ErrorCount      int64
		AvgExecutionMs  float64
		AvgMemoryMb     float64
	}
	if err := q.Select(&row); err != nil {
		return nil, err
	}

	return &Summary{
		FunctionID:      functionID,
		InvocationCount: row.InvocationCount,
		SuccessCount:    row.SuccessCount,
		ErrorCount:      row.ErrorCount,
		AvgExecutionMs:  row.AvgExecutionMs,
		AvgMemoryMB:     row.AvgMemoryMb,
	}, nil
}

// TimeSeries buckets one function's invocations by period ("hourly",
// "daily", or "weekly"). period is validated against periodFormats before
// any query is built; an unrecognized value is a plain error, never
// forwarded to SQL.
func (s *Store) TimeSeries(ctx context.Context, functionID int64, period string) ([]TimeSeriesPoint, error) {
	format, ok := periodFormats[period]
	if !ok {
		return nil, fmt.Errorf("unsupported period %q", period)
	}

	var rows []struct {
		Bucket          string
		InvocationCount int64
		AvgExecutionMs  float64
	}

	query := fmt.Sprintf(
		`SELECT to_char(timestamp, '%s') AS bucket, count(*) AS invocation_count, coalesce(avg(execution_time_ms), 0) AS avg_execution_ms
		 FROM invocation_records WHERE function_id = ? GROUP BY bucket ORDER BY bucket ASC`,
		format,
	)
	if _, err := s.db.QueryContext(ctx, &rows, query, functionID); err != nil {
		return nil, err
	}

	out := make([]TimeSeriesPoint, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse("2006-01-02 15:04", r.Bucket)
		if err != nil {
			ts, err = time.Parse("2006-01-02", r.Bucket)
		}
		if err != nil {
			// weekly buckets are "IYYY-IW": resolve to that ISO week's Monday
			var year, week int
			if _, serr := fmt.Sscanf(r.Bucket, "%d-%d", &year, &week); serr == nil {
				jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
				ts = jan4.AddDate(0, 0, (week-1)*7-(int(jan4.Weekday())+6)%7)
				err = nil
			}
		}
		if err != nil {
			ts = time.Time{}
		}
		out = append(out, TimeSeriesPoint{
			Bucket:          ts,
			InvocationCount: r.InvocationCount,
			AvgExecutionMs:  r.AvgExecutionMs,
		})
	}
	return out, nil
}
