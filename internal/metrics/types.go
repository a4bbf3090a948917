package metrics

import "time"

// InvocationRecord is produced by the Invoker for every invocation attempt,
// success or failure (spec §3). Nullable fields use pointers so "not
// collected" is distinguishable from zero.
type InvocationRecord struct {
	ID              int64     `json:"id"`
	FunctionID      int64     `json:"function_id"`
	Timestamp       time.Time `json:"timestamp"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	StatusCode      int       `json:"status_code"`
	ContainerID     *string   `json:"container_id"`
	MemoryUsageMB   *float64  `json:"memory_usage_mb"`
	CPUUsagePercent *float64  `json:"cpu_usage_percent"`
	Error           *string   `json:"error"`
	PayloadSize     int       `json:"payload_size"`
}

// InvocationModel is the go-pg row mapping for InvocationRecord.
type InvocationModel struct {
	tableName struct{} `pg:"invocation_records"` //nolint:unused

	ID              int64     `pg:"id,pk"`
	FunctionID      int64     `pg:"function_id,notnull"`
	Timestamp       time.Time `pg:"timestamp,notnull"`
	ExecutionTimeMs int64     `pg:"execution_time_ms,notnull"`
	StatusCode      int       `pg:"status_code,notnull"`
	ContainerID     *string   `pg:"container_id"`
	MemoryUsageMB   *float64  `pg:"memory_usage_mb"`
	CPUUsagePercent *float64  `pg:"cpu_usage_percent"`
	Error           *string   `pg:"error"`
	PayloadSize     int       `pg:"payload_size,notnull"`
}

func fromModel(m *InvocationModel) *InvocationRecord {
	return &InvocationRecord{
		ID:              m.ID,
		FunctionID:      m.FunctionID,
		Timestamp:       m.Timestamp,
		ExecutionTimeMs: m.ExecutionTimeMs,
		StatusCode:      m.StatusCode,
		ContainerID:     m.ContainerID,
		MemoryUsageMB:   m.MemoryUsageMB,
		CPUUsagePercent: m.CPUUsagePercent,
		Error:           m.Error,
		PayloadSize:     m.PayloadSize,
	}
}

func toModel(r *InvocationRecord) *InvocationModel {
	return &InvocationModel{
		ID:              r.ID,
		FunctionID:      r.FunctionID,
		Timestamp:       r.Timestamp,
		ExecutionTimeMs: r.ExecutionTimeMs,
		StatusCode:      r.StatusCode,
		ContainerID:     r.ContainerID,
		MemoryUsageMB:   r.MemoryUsageMB,
		CPUUsagePercent: r.CPUUsagePercent,
		Error:           r.Error,
		PayloadSize:     r.PayloadSize,
	}
}

// Summary aggregates invocation outcomes over a window, backing
// /metrics/function/{id}/summary and /metrics/summary.
type Summary struct {
	FunctionID      *int64  `json:"function_id,omitempty"`
	InvocationCount int64   `json:"invocation_count"`
	SuccessCount    int64   `json:"success_count"`
	ErrorCount      int64   `json:"error_count"`
	AvgExecutionMs  float64 `json:"avg_execution_time_ms"`
	AvgMemoryMB     float64 `json:"avg_memory_usage_mb"`
}

// TimeSeriesPoint is one bucket of /metrics/function/{id}/timeseries.
type TimeSeriesPoint struct {
	Bucket          time.Time `json:"bucket"`
	InvocationCount int64     `json:"invocation_count"`
	AvgExecutionMs  float64   `json:"avg_execution_time_ms"`
}
