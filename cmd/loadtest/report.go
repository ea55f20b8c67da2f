package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// scenarioStep: сквозной шаг: весь сценарий одного покупателя.
	scenarioStep = "scenario"
	// codeTransport заменяет HTTP-код, когда ответа не было.
	codeTransport = "transport"
)

// latencyMs — распределение задержек шага в миллисекундах.
type latencyMs struct {
	Fastest float64 `json:"fastest" yaml:"fastest"`
	Mean    float64 `json:"mean" yaml:"mean"`
	P50     float64 `json:"p50" yaml:"p50"`
	P90     float64 `json:"p90" yaml:"p90"`
	P99     float64 `json:"p99" yaml:"p99"`
	Slowest float64 `json:"slowest" yaml:"slowest"`
}

type stepReport struct {
	Calls        int64            `json:"calls" yaml:"calls"`
	OK           int64            `json:"ok" yaml:"ok"`
	Failed       int64            `json:"failed" yaml:"failed"`
	FailureRatio float64          `json:"failure_ratio" yaml:"failure_ratio"`
	Codes        map[string]int64 `json:"codes" yaml:"codes"`
	Latency      latencyMs        `json:"latency_ms" yaml:"latency_ms"`
}

// summary — итог прогона, он же содержимое файла -output.
type summary struct {
	RunID          string                `json:"run_id" yaml:"run_id"`
	StartedAt      time.Time             `json:"started_at" yaml:"started_at"`
	ElapsedSeconds float64               `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Throughput     float64               `json:"throughput_rps" yaml:"throughput_rps"`
	Scenarios      stepReport            `json:"scenarios" yaml:"scenarios"`
	Steps          map[string]stepReport `json:"steps" yaml:"steps"`
}

type stepTally struct {
	ok, failed int64
	codes      map[string]int64
	took       []time.Duration
}

func (s *stepTally) report() stepReport {
	calls := s.ok + s.failed
	return stepReport{
		Calls:        calls,
		OK:           s.ok,
		Failed:       s.failed,
		FailureRatio: share(s.failed, calls),
		Codes:        maps.Clone(s.codes),
		Latency:      distribution(s.took),
	}
}

// tally копит результаты шагов со всех воркеров.
type tally struct {
	mu    sync.Mutex
	steps map[string]*stepTally
}

func newTally() *tally {
	return &tally{steps: make(map[string]*stepTally)}
}

// observe учитывает один вызов шага. Успех: ответ получен и код меньше 400.
func (t *tally) observe(step string, took time.Duration, code int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.steps[step]
	if s == nil {
		s = &stepTally{codes: make(map[string]int64)}
		t.steps[step] = s
	}

	label := codeTransport
	if err == nil {
		label = strconv.Itoa(code)
	}
	s.codes[label]++
	s.took = append(s.took, took)

	if err == nil && code > 0 && code < http.StatusBadRequest {
		s.ok++
	} else {
		s.failed++
	}
}

func (t *tally) step(name string) (stepReport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.steps[name]; ok {
		return s.report(), true
	}
	return stepReport{}, false
}

func (t *tally) summarize(runID string, startedAt time.Time, elapsed time.Duration) summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := summary{
		RunID:          runID,
		StartedAt:      startedAt.UTC(),
		ElapsedSeconds: elapsed.Seconds(),
		Steps:          make(map[string]stepReport, len(t.steps)),
	}
	for name, s := range t.steps {
		if name == scenarioStep {
			out.Scenarios = s.report()
			continue
		}
		out.Steps[name] = s.report()
	}
	if elapsed > 0 {
		out.Throughput = float64(out.Scenarios.Calls) / elapsed.Seconds()
	}
	return out
}

// saveSummary пишет итог в файл внутри текущего каталога.
// Расширение .yaml/.yml выбирает YAML, остальные JSON.
func saveSummary(path string, s summary) error {
	root, err := os.OpenRoot(".")
	if err != nil {
		return err
	}
	defer root.Close()

	var raw []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = yaml.Marshal(s)
	default:
		raw, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	f, err := root.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, s summary, cfg config) {
	sc := s.Scenarios
	_, _ = fmt.Fprintf(w, "vegshop loadtest %s (%s, %s)\n", s.RunID, cfg.mode, describeRun(cfg))
	_, _ = fmt.Fprintf(w, "scenarios: %d ok, %d failed (%.2f%%) in %.1fs, %.1f/s\n",
		sc.OK, sc.Failed, sc.FailureRatio*100, s.ElapsedSeconds, s.Throughput)
	_, _ = fmt.Fprintf(w, "latency ms: p50 %.1f | p90 %.1f | p99 %.1f | max %.1f\n",
		sc.Latency.P50, sc.Latency.P90, sc.Latency.P99, sc.Latency.Slowest)

	for _, name := range slices.Sorted(maps.Keys(s.Steps)) {
		st := s.Steps[name]
		_, _ = fmt.Fprintf(w, "  %-16s %5d calls  %5d failed  p90 %7.1fms  [%s]\n",
			name, st.Calls, st.Failed, st.Latency.P90, joinCodes(st.Codes))
	}
}

func joinCodes(codes map[string]int64) string {
	parts := make([]string, 0, len(codes))
	for _, code := range slices.Sorted(maps.Keys(codes)) {
		parts = append(parts, code+"="+strconv.FormatInt(codes[code], 10))
	}
	return strings.Join(parts, " ")
}

func describeRun(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("%d scenarios", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("for %s, at most %d scenarios", cfg.duration, cfg.total)
	default:
		return "for " + cfg.duration.String()
	}
}

func distribution(took []time.Duration) latencyMs {
	if len(took) == 0 {
		return latencyMs{}
	}
	sorted := slices.Clone(took)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return latencyMs{
		Fastest: millis(sorted[0]),
		Mean:    millis(total / time.Duration(len(sorted))),
		P50:     millis(nearestRank(sorted, 50)),
		P90:     millis(nearestRank(sorted, 90)),
		P99:     millis(nearestRank(sorted, 99)),
		Slowest: millis(sorted[len(sorted)-1]),
	}
}

// nearestRank — перцентиль методом ближайшего ранга по отсортированному срезу.
func nearestRank(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func share(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
