package engine

import (
	"context"
	"math"
	"time"

	"github.com/ncruces/go-strftime"
)

// Times are float seconds since the Unix epoch.
func timeModule() map[string]any {
	return map[string]any{
		"time":      Func(timeNow),
		"monotonic": Func(timeMonotonic),
		"sleep":     Func(timeSleep),
		"strftime":  Func(timeStrftime),
		"strptime":  Func(timeStrptime),
		"isoformat": Func(timeISO),
		"parts":     Func(timeParts),
	}
}

var monotonicBase = time.Now()

func epoch(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

func fromEpoch(secs float64) time.Time {
	whole, frac := math.Modf(secs)

	return time.Unix(int64(whole), int64(frac*1e9))
}

// timeArg returns the time in the optional argument t, or now.
func timeArg(name string, a Args, extra ...any) (time.Time, error) {
	var t any

	specs := append(extra, "t?", &t)
	if err := a.Unpack(name, specs...); err != nil {
		return time.Time{}, err
	}

	if t == nil {
		return time.Now(), nil
	}

	n, ok := toNumber(t)
	if !ok {
		return time.Time{}, Errorf(CategoryType, "%s() argument 't' must be a number, not %s", name, typeName(t))
	}

	return fromEpoch(n.float()), nil
}

func timeNow(_ context.Context, a Args) (any, error) {
	if err := a.Unpack("time"); err != nil {
		return nil, err
	}

	return epoch(time.Now()), nil
}

func timeMonotonic(_ context.Context, a Args) (any, error) {
	if err := a.Unpack("monotonic"); err != nil {
		return nil, err
	}

	return time.Since(monotonicBase).Seconds(), nil
}

// timeSleep blocks for the given seconds or until the run is stopped.
func timeSleep(ctx context.Context, a Args) (any, error) {
	var d time.Duration
	if err := a.Unpack("sleep", "secs", &d); err != nil {
		return nil, err
	}

	if d < 0 {
		return nil, NewError(CategoryValue, "sleep length must be non-negative")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ErrTerminated.Wrap(context.Cause(ctx))
	}
}

func timeStrftime(_ context.Context, a Args) (any, error) {
	var format string

	t, err := timeArg("strftime", a, "format", &format)
	if err != nil {
		return nil, err
	}

	return strftime.Format(format, t), nil
}

func timeStrptime(_ context.Context, a Args) (any, error) {
	var s, format string
	if err := a.Unpack("strptime", "string", &s, "format", &format); err != nil {
		return nil, err
	}

	t, err := strftime.Parse(format, s)
	if err != nil {
		return nil, Errorf(CategoryValue, "time data %s does not match format %s", quote(s), quote(format))
	}

	return epoch(t), nil
}

func timeISO(_ context.Context, a Args) (any, error) {
	t, err := timeArg("isoformat", a)
	if err != nil {
		return nil, err
	}

	return t.Format(time.RFC3339Nano), nil
}

// timeParts splits a time into its local calendar fields.
func timeParts(_ context.Context, a Args) (any, error) {
	t, err := timeArg("parts", a)
	if err != nil {
		return nil, err
	}

	d := NewDict()

	for _, kv := range []struct {
		k string
		v int
	}{
		{"year", t.Year()},
		{"month", int(t.Month())},
		{"day", t.Day()},
		{"hour", t.Hour()},
		{"minute", t.Minute()},
		{"second", t.Second()},
		{"microsecond", t.Nanosecond() / 1000},
		{"weekday", (int(t.Weekday()) + 6) % 7},
		{"yearday", t.YearDay()},
	} {
		if err := d.Set(kv.k, int64(kv.v)); err != nil {
			return nil, err
		}
	}

	return d, nil
}
