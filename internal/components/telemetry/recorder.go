package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call made to a Recorder.
type Report struct {
	Kind   string
	ID     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps every report in memory so tests can assert
// on what a component reported.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) push(report Report) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.push(Report{Kind: "broken", ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.push(Report{Kind: "warning", ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.push(Report{Kind: "debug", ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.push(Report{Kind: "count", ID: id, Count: count})
}

// Reports returns a copy of every report of the given kind ("broken",
// "warning", "debug", "count"), all of them if kind is empty.
func (r *Recorder) Reports(kind string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, report := range r.reports {
		if kind == "" || report.Kind == kind {
			out = append(out, report)
		}
	}
	return out
}

// Has returns true if a report of the given kind has an id containing substr.
func (r *Recorder) Has(kind, substr string) bool {
	for _, report := range r.Reports(kind) {
		if strings.Contains(report.ID, substr) {
			return true
		}
	}
	return false
}
