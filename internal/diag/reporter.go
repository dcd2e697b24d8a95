package diag

// Reporter receives diagnostics from a producer.
type Reporter interface {
	Report(d Diagnostic)
}

// BagReporter adds diagnostics to Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(d)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Diagnostic)

func (f ReporterFunc) Report(d Diagnostic) { f(d) }

type dedupKey struct {
	code   Code
	sev    Severity
	file   string
	line   int
	column int
	msg    string
}

// DedupReporter forwards each distinct diagnostic once.
type DedupReporter struct {
	next Reporter
	seen map[dedupKey]struct{}
}

func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{next: next, seen: make(map[dedupKey]struct{})}
}

func (r *DedupReporter) Report(d Diagnostic) {
	key := dedupKey{d.Code, d.Severity, d.Pos.Filename, d.Pos.Line, d.Pos.Column, d.Message}
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(d)
	}
}
