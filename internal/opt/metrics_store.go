package opt

import (
    "sort"
    "sync"
    "time"
)

// RunRecord is the compact form of a finished batch kept for reporting.
type RunRecord struct {
    BatchID      string    `json:"batchId"`
    DateRange    DateRange `json:"dateRange"`
    GroupCount   int       `json:"groupCount"`
    FailedGroups int       `json:"failedGroups"`
    TripCount    int       `json:"tripCount"`
    SavedMeters  float64   `json:"savedMeters"`
    FinishedAt   time.Time `json:"finishedAt"`
}

const runLogLimit = 20

// RunLog keeps the most recent batch runs per tenant in memory.
type RunLog struct {
    mu   sync.Mutex
    runs map[string][]RunRecord
}

func NewRunLog() *RunLog { return &RunLog{runs: map[string][]RunRecord{}} }

func (l *RunLog) Record(s BatchSummary) {
    rec := RunRecord{BatchID: s.BatchID, DateRange: s.DateRange, GroupCount: s.GroupCount, FailedGroups: s.FailedGroups, TripCount: s.TripCount, SavedMeters: s.TotalSavings.Distance, FinishedAt: s.FinishedAt}
    l.mu.Lock()
    defer l.mu.Unlock()
    runs := append(l.runs[s.TenantID], rec)
    if len(runs) > runLogLimit { runs = runs[len(runs)-runLogLimit:] }
    l.runs[s.TenantID] = runs
}

// Overlapping returns the tenant's runs whose range intersects [start, end]
// (YYYY-MM-DD strings), newest first.
func (l *RunLog) Overlapping(tenant, start, end string) []RunRecord {
    l.mu.Lock()
    defer l.mu.Unlock()
    var out []RunRecord
    for _, r := range l.runs[tenant] {
        if r.DateRange.Start <= end && r.DateRange.End >= start { out = append(out, r) }
    }
    sort.SliceStable(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
    return out
}
