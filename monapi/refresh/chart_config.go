package refresh

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Reserved keys of a chart config; every other key is a display option.
const (
	keyStart = "start"
	keyEnd   = "end"
	keyNow   = "now"
)

// ChartConfig is the stored configuration of one chart widget. Only the time
// window is interpreted here; display options (metrics, chart type, legend...)
// are carried through untouched.
type ChartConfig struct {
	Start time.Time
	End   time.Time
	Now   time.Time

	Options map[string]json.RawMessage
}

// ParseChartConfig decodes the JSON configs string stored with a chart.
func ParseChartConfig(raw string) (ChartConfig, error) {
	var cfg ChartConfig
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return ChartConfig{}, err
	}
	return cfg, nil
}

// HasWindow reports whether both ends of the time window are set.
func (c ChartConfig) HasWindow() bool {
	return !c.Start.IsZero() && !c.End.IsZero()
}

// Duration is the width of the window.
func (c ChartConfig) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// Rewindow slides the window so that it ends at anchor, keeping its width.
// Configs without a window are returned as they are.
func Rewindow(cfg ChartConfig, anchor time.Time) ChartConfig {
	if !cfg.HasWindow() {
		return cfg
	}
	d := cfg.Duration()
	out := cfg
	out.End = anchor
	out.Start = anchor.Add(-d)
	out.Now = anchor
	return out
}

// UnmarshalJSON accepts start/end/now either as millisecond strings, which is
// how the console stores them, or as plain numbers.
func (c *ChartConfig) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("chart config: %w", err)
	}

	var err error
	if c.Start, err = takeMillis(fields, keyStart); err != nil {
		return err
	}
	if c.End, err = takeMillis(fields, keyEnd); err != nil {
		return err
	}
	if c.Now, err = takeMillis(fields, keyNow); err != nil {
		return err
	}
	c.Options = fields
	return nil
}

// MarshalJSON writes options back with the window as millisecond strings.
func (c ChartConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Options)+3)
	for k, v := range c.Options {
		out[k] = v
	}
	putMillis(out, keyStart, c.Start)
	putMillis(out, keyEnd, c.End)
	putMillis(out, keyNow, c.Now)
	return json.Marshal(out)
}

// String encodes the config in its stored form.
func (c ChartConfig) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func takeMillis(fields map[string]json.RawMessage, key string) (time.Time, error) {
	raw, ok := fields[key]
	if !ok {
		return time.Time{}, nil
	}
	delete(fields, key)

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, fmt.Errorf("chart config %s: %w", key, err)
	}

	var ms int64
	switch val := v.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		if val == "" {
			return time.Time{}, nil
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("chart config %s: %w", key, err)
		}
		ms = n
	case float64:
		ms = int64(val)
	default:
		return time.Time{}, fmt.Errorf("chart config %s: unexpected %T", key, v)
	}
	return time.UnixMilli(ms), nil
}

func putMillis(out map[string]any, key string, t time.Time) {
	if t.IsZero() {
		return
	}
	out[key] = strconv.FormatInt(t.UnixMilli(), 10)
}
