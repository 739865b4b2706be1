package observability

import (
	"sync"
	"sync/atomic"
)

type StatsSnapshot struct {
	RunsStarted        uint64            `json:"runs_started"`
	RunsCompleted      uint64            `json:"runs_completed"`
	RunsPartial        uint64            `json:"runs_partial"`
	RunsFailed         uint64            `json:"runs_failed"`
	PagesFetched       uint64            `json:"pages_fetched"`
	FragmentsExtracted uint64            `json:"fragments_extracted"`
	LeadsImported      uint64            `json:"leads_imported"`
	AICalls            uint64            `json:"ai_calls"`
	ErrorsTotal        uint64            `json:"errors_total"`
	RunSecondsAvg      float64           `json:"run_seconds_avg"`
	ErrorsByKind       map[string]uint64 `json:"errors_by_kind,omitempty"`
	ErrorsByComponent  map[string]uint64 `json:"errors_by_component,omitempty"`
	RunsBySite         map[string]uint64 `json:"runs_by_site,omitempty"`
}

var (
	runsStarted   uint64
	runsCompleted uint64
	runsPartial   uint64
	runsFailed    uint64
	pagesFetched  uint64
	fragments     uint64
	leadsImported uint64
	aiCalls       uint64
	errorsTotal   uint64

	runCount uint64
	runNanos uint64

	statsMu           sync.Mutex
	errorsByKind      = map[string]uint64{}
	errorsByComponent = map[string]uint64{}
	runsBySite        = map[string]uint64{}
)

func IncRunStarted(site string) {
	atomic.AddUint64(&runsStarted, 1)
	if site == "" {
		site = "unknown"
	}
	statsMu.Lock()
	runsBySite[site]++
	statsMu.Unlock()
}

func IncRunFinished(status string) {
	switch status {
	case "completed":
		atomic.AddUint64(&runsCompleted, 1)
	case "partial":
		atomic.AddUint64(&runsPartial, 1)
	default:
		atomic.AddUint64(&runsFailed, 1)
	}
}

func IncPageFetched() {
	atomic.AddUint64(&pagesFetched, 1)
}

func AddFragments(n int) {
	if n > 0 {
		atomic.AddUint64(&fragments, uint64(n))
	}
}

func AddLeadsImported(n int) {
	if n > 0 {
		atomic.AddUint64(&leadsImported, uint64(n))
	}
}

func IncAICall(_ string) {
	atomic.AddUint64(&aiCalls, 1)
}

func ObserveRunDuration(seconds float64) {
	if seconds <= 0 {
		return
	}
	atomic.AddUint64(&runCount, 1)
	atomic.AddUint64(&runNanos, uint64(seconds*1e9))
}

func IncError(kind, component string) {
	if kind == "" {
		kind = "unknown"
	}
	if component == "" {
		component = "unknown"
	}
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByKind[kind]++
	errorsByComponent[component]++
	statsMu.Unlock()
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	kindCopy := copyMap(errorsByKind)
	componentCopy := copyMap(errorsByComponent)
	siteCopy := copyMap(runsBySite)
	statsMu.Unlock()

	count := atomic.LoadUint64(&runCount)
	avg := 0.0
	if count > 0 {
		avg = float64(atomic.LoadUint64(&runNanos)) / float64(count) / 1e9
	}

	return StatsSnapshot{
		RunsStarted:        atomic.LoadUint64(&runsStarted),
		RunsCompleted:      atomic.LoadUint64(&runsCompleted),
		RunsPartial:        atomic.LoadUint64(&runsPartial),
		RunsFailed:         atomic.LoadUint64(&runsFailed),
		PagesFetched:       atomic.LoadUint64(&pagesFetched),
		FragmentsExtracted: atomic.LoadUint64(&fragments),
		LeadsImported:      atomic.LoadUint64(&leadsImported),
		AICalls:            atomic.LoadUint64(&aiCalls),
		ErrorsTotal:        atomic.LoadUint64(&errorsTotal),
		RunSecondsAvg:      avg,
		ErrorsByKind:       kindCopy,
		ErrorsByComponent:  componentCopy,
		RunsBySite:         siteCopy,
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
