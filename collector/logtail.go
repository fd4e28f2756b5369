package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/collect"
)

// maxPartialLine caps the bytes kept for a line that has no newline yet.
const maxPartialLine = 64 * 1024

// LogReader tails the file of one log collect. Lines matching the pattern
// are grouped by their extracted tags and folded into one value per step
// with the collect's func.
type LogReader struct {
	c       *collect.Collect
	path    string
	pattern *regexp.Regexp
	tags    map[string]*regexp.Regexp
	logger  *zap.Logger

	mu       sync.Mutex
	window   map[string]*logWindow
	exported map[string]bool

	file    *os.File
	offset  int64
	partial []byte
}

type logWindow struct {
	count         int
	sum, max, min float64
}

func NewLogReader(c *collect.Collect, logger *zap.Logger) (*LogReader, error) {
	if c.Log == nil || c.Log.FilePath == "" {
		return nil, fmt.Errorf("collect %d: missing log file path", c.ID)
	}
	pattern, err := regexp.Compile(c.Log.Pattern)
	if err != nil {
		return nil, fmt.Errorf("collect %d: pattern: %w", c.ID, err)
	}
	tags := make(map[string]*regexp.Regexp, len(c.Log.Tags))
	for k, expr := range c.Log.Tags {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("collect %d: tag %s: %w", c.ID, k, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("collect %d: tag %s needs a capture group", c.ID, k)
		}
		tags[k] = re
	}
	path, err := filepath.Abs(c.Log.FilePath)
	if err != nil {
		return nil, err
	}
	return &LogReader{
		c:        c,
		path:     path,
		pattern:  pattern,
		tags:     tags,
		logger:   logger.With(zap.Int64("collect_id", c.ID), zap.String("file", path)),
		window:   make(map[string]*logWindow),
		exported: make(map[string]bool),
	}, nil
}

// Consume folds one line into the current window. The first capture group
// of the pattern, when present, is the value; otherwise each line counts 1.
// Lines missing a tag are skipped.
func (r *LogReader) Consume(line string) {
	m := r.pattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	v := 1.0
	if len(m) > 1 {
		f, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
		switch {
		case err == nil:
			v = f
		case r.fn() != "cnt":
			return
		}
	}

	values := make(map[string]string, len(r.tags))
	for k, re := range r.tags {
		tm := re.FindStringSubmatch(line)
		if tm == nil || tm[1] == "" {
			return
		}
		values[k] = tm[1]
	}
	key := joinTags(r.c.Tags, values)

	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.window[key]
	if w == nil {
		w = &logWindow{max: math.Inf(-1), min: math.Inf(1)}
		r.window[key] = w
	}
	w.count++
	w.sum += v
	w.max = math.Max(w.max, v)
	w.min = math.Min(w.min, v)
}

func (r *LogReader) fn() string {
	if r.c.Log.Func == "" {
		return "cnt"
	}
	return r.c.Log.Func
}

// Flush exports the window and starts a new one. Tag sets that saw no line
// report 0 for cnt and sum and keep their last value otherwise.
func (r *LogReader) Flush() {
	r.mu.Lock()
	window := r.window
	r.window = make(map[string]*logWindow)
	r.mu.Unlock()

	fn := r.fn()
	metric := r.c.Metric()
	for key, w := range window {
		var v float64
		switch fn {
		case "cnt":
			v = float64(w.count)
		case "sum":
			v = w.sum
		case "avg":
			v = w.sum / float64(w.count)
		case "max":
			v = w.max
		case "min":
			v = w.min
		}
		CollectValue.WithLabelValues(metric, r.c.Name, key).Set(v)
		r.exported[key] = true
		r.logger.Debug("log value", zap.String("metric", metric), zap.String("tags", key), zap.Float64("value", v))
	}
	if fn == "cnt" || fn == "sum" {
		for key := range r.exported {
			if _, ok := window[key]; !ok {
				CollectValue.WithLabelValues(metric, r.c.Name, key).Set(0)
			}
		}
	}
}

// Run tails the file until ctx ends. Reading starts at the current end of
// the file; a file created later, or recreated by rotation, is read from
// its start.
func (r *LogReader) Run(ctx context.Context) {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err = watcher.Add(filepath.Dir(r.path)); err != nil {
			watcher.Close()
		} else {
			defer watcher.Close()
			events, errs = watcher.Events, watcher.Errors
		}
	}
	if err != nil {
		r.logger.Warn("log watch unavailable, reading at step", zap.Error(err))
	}

	if err := r.open(true); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("open log file", zap.Error(err))
	}

	step := time.Duration(r.c.Step) * time.Second
	if step <= 0 {
		step = 10 * time.Second
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeFile()
			r.dropGauges()
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				r.closeFile()
				r.readNew()
			case ev.Has(fsnotify.Write):
				r.readNew()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				r.readNew()
				r.closeFile()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("log watcher error", zap.Error(err))
		case <-ticker.C:
			r.readNew()
			r.Flush()
		}
	}
}

func (r *LogReader) open(atEnd bool) error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	var offset int64
	if atEnd {
		if offset, err = f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return err
		}
	}
	r.file = f
	r.offset = offset
	r.partial = r.partial[:0]
	return nil
}

func (r *LogReader) closeFile() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

// readNew consumes every complete line appended since the last read. A file
// shorter than the read offset was truncated and is read again from 0.
func (r *LogReader) readNew() {
	if r.file == nil {
		if err := r.open(false); err != nil {
			return
		}
	}
	if fi, err := r.file.Stat(); err == nil && fi.Size() < r.offset {
		if _, err := r.file.Seek(0, io.SeekStart); err == nil {
			r.offset = 0
			r.partial = r.partial[:0]
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.file.Read(buf)
		if n > 0 {
			r.offset += int64(n)
			r.consumeChunk(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("read log file", zap.Error(err))
			}
			return
		}
	}
}

func (r *LogReader) consumeChunk(chunk []byte) {
	data := append(r.partial, chunk...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		r.Consume(string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	if len(data) > maxPartialLine {
		data = data[len(data)-maxPartialLine:]
	}
	r.partial = append(r.partial[:0:0], data...)
}

func (r *LogReader) dropGauges() {
	for key := range r.exported {
		CollectValue.DeleteLabelValues(r.c.Metric(), r.c.Name, key)
	}
	r.exported = make(map[string]bool)
}

// joinTags renders base followed by the extracted tags in key order.
func joinTags(base string, extracted map[string]string) string {
	keys := make([]string, 0, len(extracted))
	for k := range extracted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if base != "" {
		parts = append(parts, base)
	}
	for _, k := range keys {
		parts = append(parts, k+"="+extracted[k])
	}
	return strings.Join(parts, ",")
}
