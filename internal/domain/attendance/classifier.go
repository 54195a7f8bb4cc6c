package attendance

import (
	"math"
	"time"

	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/device"
)

// band is the position of a punch relative to a window's tolerance bands.
type band int

const (
	bandBeforeStart band = iota
	bandGrace
	bandLate
	bandVeryLate
	bandBeforeEarlyLeave
	bandAfterEarlyLeave
)

var bandNames = map[band]string{
	bandBeforeStart:      "before_start",
	bandGrace:            "grace",
	bandLate:             "late",
	bandVeryLate:         "very_late",
	bandBeforeEarlyLeave: "before_early_leave",
	bandAfterEarlyLeave:  "after_early_leave",
}

func (b band) String() string { return bandNames[b] }

var (
	entryBands = []band{bandBeforeStart, bandGrace, bandLate, bandVeryLate}
	exitBands  = []band{bandBeforeEarlyLeave, bandAfterEarlyLeave}
)

// statusNone is the "from" state of a worker without a record for the day.
const statusNone Status = ""

type action int

const (
	actCreate action = iota + 1
	actLeave
	actRestore
	actMark
)

type transitionKey struct {
	from Status
	role device.Role
	band band
}

type effect struct {
	action action
	to     Status
}

type Policy struct {
	// ReturnRestoresOnTime lets an entry punch inside the grace band undo
	// an earlier EarlyLeave. The return punch decides, not the stored
	// arrival: EarlyLeave is only reached from OnTime, so the stored
	// arrival is always inside grace.
	ReturnRestoresOnTime bool
}

// Classifier maps punches onto attendance records through an explicit
// transition table. Combinations missing from the table are ignored.
type Classifier struct {
	table map[transitionKey]effect
}

func NewClassifier(p Policy) *Classifier {
	table := map[transitionKey]effect{}

	arrival := map[band]Status{
		bandBeforeStart: StatusOnTime,
		bandGrace:       StatusOnTime,
		bandLate:        StatusLate,
		bandVeryLate:    StatusVeryLate,
	}
	for _, b := range entryBands {
		table[transitionKey{statusNone, device.RoleEntry, b}] = effect{action: actCreate, to: arrival[b]}
		for _, st := range []Status{StatusOnTime, StatusLate, StatusVeryLate, StatusEarlyLeave} {
			table[transitionKey{st, device.RoleEntry, b}] = effect{action: actMark}
		}
	}
	if p.ReturnRestoresOnTime {
		table[transitionKey{StatusEarlyLeave, device.RoleEntry, bandBeforeStart}] = effect{action: actRestore, to: StatusOnTime}
		table[transitionKey{StatusEarlyLeave, device.RoleEntry, bandGrace}] = effect{action: actRestore, to: StatusOnTime}
	}

	table[transitionKey{StatusOnTime, device.RoleExit, bandBeforeEarlyLeave}] = effect{action: actLeave, to: StatusEarlyLeave}
	table[transitionKey{StatusOnTime, device.RoleExit, bandAfterEarlyLeave}] = effect{action: actLeave}
	for _, st := range []Status{StatusLate, StatusVeryLate, StatusEarlyLeave} {
		for _, b := range exitBands {
			table[transitionKey{st, device.RoleExit, b}] = effect{action: actLeave}
		}
	}
	return &Classifier{table: table}
}

// Bands are the tolerance instants of one resolved window.
type Bands struct {
	WorkStart       time.Time
	GraceStart      time.Time
	GraceEnd        time.Time
	Cutoff          *time.Time
	EarlyLeaveStart time.Time
}

// NewBands places the schedule tolerance on the window. An unset grace
// band collapses onto the shift start, an unset early-leave start onto the
// shift end, and without a cutoff no punch is very late.
func NewBands(w shift.Window, tol shift.Tolerance) Bands {
	b := Bands{
		WorkStart:       w.Start,
		GraceStart:      w.Start,
		GraceEnd:        w.Start,
		EarlyLeaveStart: w.End,
	}
	if tol.LateStart != nil {
		b.GraceStart = w.At(*tol.LateStart)
	}
	if tol.LateEnd != nil {
		b.GraceEnd = w.At(*tol.LateEnd)
	}
	if tol.LateCutoff != nil {
		cutoff := w.At(*tol.LateCutoff)
		b.Cutoff = &cutoff
	}
	if tol.EarlyLeaveStart != nil {
		b.EarlyLeaveStart = w.At(*tol.EarlyLeaveStart)
	}
	return b
}

func (b Bands) entry(t time.Time) band {
	switch {
	case !t.After(b.WorkStart):
		return bandBeforeStart
	case !t.Before(b.GraceStart) && !t.After(b.GraceEnd):
		return bandGrace
	case b.Cutoff != nil && !t.Before(*b.Cutoff):
		return bandVeryLate
	default:
		return bandLate
	}
}

func (b Bands) exit(t time.Time) band {
	if t.Before(b.EarlyLeaveStart) {
		return bandBeforeEarlyLeave
	}
	return bandAfterEarlyLeave
}

// Apply returns rec updated by p and whether anything changed. rec is nil
// when the worker has no record for the window's date yet. Punches at or
// before the record's mark time never change it.
func (c *Classifier) Apply(rec *Record, p Punch, w shift.Window, tol shift.Tolerance) (Record, bool) {
	var next Record
	if rec != nil {
		next = *rec
		if rec.MarkTime != nil && !p.Time.After(*rec.MarkTime) {
			return next, false
		}
	}

	bands := NewBands(w, tol)
	var b band
	switch p.Role {
	case device.RoleEntry:
		b = bands.entry(p.Time)
	case device.RoleExit:
		b = bands.exit(p.Time)
	default:
		return next, false
	}

	from := statusNone
	if rec != nil {
		from = rec.Status
	}
	eff, ok := c.table[transitionKey{from, p.Role, b}]
	if !ok {
		return next, false
	}

	at := p.Time
	switch eff.action {
	case actCreate:
		next = Record{WorkerID: p.WorkerID, Date: w.Date, Arrival: at, Status: eff.to}
	case actLeave:
		next.Leave = &at
		if eff.to != statusNone {
			next.Status = eff.to
		}
		next.WorkedHours = workedHours(next.Arrival, at)
	case actRestore:
		next.Status = eff.to
		next.Leave = nil
		next.WorkedHours = 0
	case actMark:
	}
	next.MarkTime = &at
	next.MarkZoneID = p.ZoneID
	return next, true
}

func workedHours(arrival, leave time.Time) float64 {
	d := leave.Sub(arrival)
	if d <= 0 {
		return 0
	}
	return math.Round(d.Hours()*100) / 100
}
