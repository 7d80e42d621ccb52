// Package tradelog writes one JSONL file per backtest run, one line per
// processed session, and reads those files back for replays.
package tradelog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/types"
)

const dateLayout = "2006-01-02"

var mu sync.Mutex

type Entry struct {
	Time           string                `json:"time"`
	RunID          string                `json:"run_id"`
	Ticker         string                `json:"ticker"`
	Date           string                `json:"date"`
	State          types.SessionState    `json:"state"`
	SkipReason     types.SkipReason      `json:"skip_reason,omitempty"`
	DecisionDate   string                `json:"decision_date,omitempty"`
	Price          float64               `json:"price,omitempty"`
	Decision       *types.Decision       `json:"decision,omitempty"`
	Executed       int                   `json:"executed"`
	Cash           float64               `json:"cash"`
	Position       int                   `json:"position"`
	PortfolioValue float64               `json:"portfolio_value"`
	Tally          types.SignalTally     `json:"tally"`
	Advisory       string                `json:"advisory,omitempty"`
	Assessment     *types.RiskAssessment `json:"assessment,omitempty"`
}

func LogDir() string {
	if v := os.Getenv("BACKTEST_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// Writer is a Sink that dumps every session outcome of a run.
type Writer struct {
	dir string
}

var _ interfaces.Sink = (*Writer)(nil)

// New writes under dir, or LogDir() when dir is empty.
func New(dir string) *Writer {
	if dir == "" {
		dir = LogDir()
	}
	return &Writer{dir: dir}
}

// Path is the file a run is written to.
func (w *Writer) Path(r *types.Result) string {
	name := fmt.Sprintf("%s_%s_%s_%s.jsonl",
		r.Ticker, r.Start.Format(dateLayout), r.End.Format(dateLayout), shortID(r.RunID))
	return filepath.Join(w.dir, name)
}

func (w *Writer) Publish(ctx context.Context, r *types.Result) error {
	p := w.Path(r)
	now := time.Now().UTC().Format(time.RFC3339)
	for _, o := range r.Outcomes {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := FromOutcome(r, o)
		e.Time = now
		if err := Append(p, e); err != nil {
			return fmt.Errorf("append trade log %s: %w", p, err)
		}
	}
	return nil
}

// FromOutcome flattens one session outcome into a log entry.
func FromOutcome(r *types.Result, o types.SessionOutcome) Entry {
	e := Entry{
		RunID:          r.RunID,
		Ticker:         r.Ticker,
		Date:           o.Date.Format(dateLayout),
		State:          o.State,
		SkipReason:     o.SkipReason,
		Price:          o.Price,
		Decision:       o.Decision,
		Executed:       o.ExecutedQuantity,
		Cash:           o.Cash,
		Position:       o.Position,
		PortfolioValue: o.PortfolioValue,
		Tally:          o.Tally,
		Advisory:       o.Advisory,
		Assessment:     o.Assessment,
	}
	if !o.DecisionDate.IsZero() {
		e.DecisionDate = o.DecisionDate.Format(dateLayout)
	}
	return e
}

func Append(path string, e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadRun loads a run file written by Writer. Gzipped files produced by
// CompressOlder are read transparently. Unparseable lines are skipped.
func ReadRun(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	}

	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CompressOlder gzips run files under dir not modified for retentionDays.
func CompressOlder(dir string, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	if dir == "" {
		dir = LogDir()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := d.Info()
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// already compressed on an earlier pass
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		compress(p, gz)
		return nil
	})
}

func compress(src, dst string) {
	mu.Lock()
	defer mu.Unlock()

	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	gw := gzip.NewWriter(out)
	_, copyErr := io.Copy(gw, in)
	closeErr := gw.Close()
	_ = out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		return
	}
	_ = os.Remove(src)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
