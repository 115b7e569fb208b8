// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"expvar"
	"sync"
	"time"
)

var (
	initOnce sync.Once

	requestTotal     *expvar.Map
	requestLatencyMS *expvar.Int

	submissionWrites *expvar.Int
	auditEntries     *expvar.Int
	fieldChanges     *expvar.Int

	historyQueries *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		requestTotal = expvar.NewMap("progressd_requests_total")
		requestLatencyMS = expvar.NewInt("progressd_request_latency_ms_total")

		submissionWrites = expvar.NewInt("progressd_submission_writes_total")
		auditEntries = expvar.NewInt("progressd_audit_entries_total")
		fieldChanges = expvar.NewInt("progressd_field_changes_total")

		historyQueries = expvar.NewInt("progressd_history_queries_total")
	})
}

// RecordRequest counts one handled HTTP request per method and accumulates
// its latency.
func RecordRequest(method string, duration time.Duration) {
	ensureInit()
	requestTotal.Add(method, 1)
	requestLatencyMS.Add(duration.Milliseconds())
}

// RecordSubmissionWrite counts one committed submission mutation.
func RecordSubmissionWrite() {
	ensureInit()
	submissionWrites.Add(1)
}

// RecordAuditEntry counts one persisted audit entry and its field changes.
func RecordAuditEntry(changes int) {
	ensureInit()
	auditEntries.Add(1)
	fieldChanges.Add(int64(changes))
}

// RecordHistoryQuery counts one field-history projection.
func RecordHistoryQuery() {
	ensureInit()
	historyQueries.Add(1)
}
