package prometheus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

// Source is what the exporter reads. *rbacAuth.Engine implements it.
type Source interface {
	MetricsSnapshot() rbacAuth.MetricsSnapshot
	NoticesDropped() uint64
}

// Exporter renders engine metrics for a Prometheus scrape.
type Exporter struct {
	source Source
}

// New returns an Exporter reading from source.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition text. A disabled engine yields an empty body.
func (x *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = x.WriteTo(w)
	})
}

// Render returns the exposition text, or "" when metrics are off.
func (x *Exporter) Render() string {
	var buf bytes.Buffer
	_, _ = x.WriteTo(&buf)
	return buf.String()
}

// WriteTo writes one scrape's worth of series to w.
func (x *Exporter) WriteTo(w io.Writer) (int64, error) {
	if x == nil || x.source == nil {
		return 0, nil
	}
	snap := x.source.MetricsSnapshot()
	dropped := x.source.NoticesDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, def := range internaldefs.CounterDefs {
		cw.counter(def.Name, def.Help, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		if raw, ok := snap.Histograms[def.ID]; ok {
			cw.histogram(def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)))
		}
	}
	cw.counter(internaldefs.NoticesDroppedName, "Best-effort notices dropped because the queue was full.", dropped)

	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

// countingWriter keeps the first write error and skips everything after it.
type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) header(name, help, kind string) {
	c.printf("# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}

func (c *countingWriter) counter(name, help string, v uint64) {
	c.header(name, help, "counter")
	c.printf("%s %d\n", name, v)
}

func (c *countingWriter) histogram(name, help string, cumulative internaldefs.Buckets) {
	c.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		c.printf("%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}
	// Only bucket counts are tracked, so the sum is always reported as zero.
	c.printf("%s_sum 0\n%s_count %d\n", name, name, cumulative[len(cumulative)-1])
}
