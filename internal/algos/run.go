package algos

import (
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// Period is a calendar bucket used by the periodic run steps.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// RunPeriod passes on the first tick of every new calendar period. It compares the current
// tick with the previous tick of the universe, so it needs no state.
type RunPeriod struct {
	period Period
	// RunOnFirst makes the very first tick pass.
	RunOnFirst bool
	// RunOnEnd passes on the last tick of a period instead of the first.
	RunOnEnd bool
}

// NewRunPeriod creates a periodic gate that runs on the first tick.
func NewRunPeriod(period Period) (*RunPeriod, error) {
	switch period {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unknown period %q", period)
	}

	return &RunPeriod{period: period, RunOnFirst: true}, nil
}

func RunDaily() *RunPeriod {
	return &RunPeriod{period: PeriodDay, RunOnFirst: true}
}

func RunWeekly() *RunPeriod {
	return &RunPeriod{period: PeriodWeek, RunOnFirst: true}
}

func RunMonthly() *RunPeriod {
	return &RunPeriod{period: PeriodMonth, RunOnFirst: true}
}

func RunQuarterly() *RunPeriod {
	return &RunPeriod{period: PeriodQuarter, RunOnFirst: true}
}

func RunYearly() *RunPeriod {
	return &RunPeriod{period: PeriodYear, RunOnFirst: true}
}

func (a *RunPeriod) Name() string {
	return "run_" + string(a.period)
}

func (a *RunPeriod) Evaluate(s tree.Strategy) (bool, error) {
	u := s.Tree().Universe()
	tick := s.Tick()

	if a.RunOnEnd {
		if tick+1 >= u.Len() {
			return false, nil
		}

		return a.changed(u.Tick(tick), u.Tick(tick+1)), nil
	}

	if tick == 0 {
		return a.RunOnFirst, nil
	}

	return a.changed(u.Tick(tick-1), u.Tick(tick)), nil
}

func (a *RunPeriod) changed(prev, now time.Time) bool {
	switch a.period {
	case PeriodDay:
		return prev.Year() != now.Year() || prev.YearDay() != now.YearDay()
	case PeriodWeek:
		py, pw := prev.ISOWeek()
		ny, nw := now.ISOWeek()

		return py != ny || pw != nw
	case PeriodMonth:
		return prev.Year() != now.Year() || prev.Month() != now.Month()
	case PeriodQuarter:
		return prev.Year() != now.Year() || (prev.Month()-1)/3 != (now.Month()-1)/3
	default:
		return prev.Year() != now.Year()
	}
}

// RunOnce passes on the first tick it is evaluated and never again.
type RunOnce struct {
	key string
}

func NewRunOnce() *RunOnce {
	return &RunOnce{key: stateKey("run_once")}
}

func (a *RunOnce) Name() string {
	return "run_once"
}

func (a *RunOnce) Evaluate(s tree.Strategy) (bool, error) {
	if _, done := s.Persistent().Get(a.key); done {
		return false, nil
	}

	s.Persistent().Set(a.key, true)

	return true, nil
}

// RunEveryN passes on every n-th evaluation, starting at evaluation offset.
type RunEveryN struct {
	n      int
	offset int
	key    string
}

func NewRunEveryN(n int, offset int) (*RunEveryN, error) {
	if n <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "run every n needs n > 0, got %d", n)
	}

	if offset < 0 || offset >= n {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "offset must be in [0, %d), got %d", n, offset)
	}

	return &RunEveryN{n: n, offset: offset, key: stateKey("run_every_n")}, nil
}

func (a *RunEveryN) Name() string {
	return "run_every_n"
}

func (a *RunEveryN) Evaluate(s tree.Strategy) (bool, error) {
	count, _ := s.Persistent().GetInt(a.key)
	s.Persistent().Set(a.key, count+1)

	return count%a.n == a.offset, nil
}

// RunAfterDate passes once the current tick is strictly after date.
type RunAfterDate struct {
	date time.Time
}

func NewRunAfterDate(date time.Time) *RunAfterDate {
	return &RunAfterDate{date: date}
}

func (a *RunAfterDate) Name() string {
	return "run_after_date"
}

func (a *RunAfterDate) Evaluate(s tree.Strategy) (bool, error) {
	return s.Now().After(a.date), nil
}

// RunAfterTicks passes once n ticks of warm-up have elapsed.
type RunAfterTicks struct {
	n int
}

func NewRunAfterTicks(n int) *RunAfterTicks {
	return &RunAfterTicks{n: n}
}

func (a *RunAfterTicks) Name() string {
	return "run_after_ticks"
}

func (a *RunAfterTicks) Evaluate(s tree.Strategy) (bool, error) {
	return s.Tick() >= a.n, nil
}
