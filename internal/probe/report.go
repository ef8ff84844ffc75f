package probe

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
)

// Report is the outcome of one Run
type Report struct {
	BaseURL string
	TraceID string
	Started time.Time
	Elapsed time.Duration
	Results []Result
}

func (r Report) count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Passed returns the number of routes that passed
func (r Report) Passed() int { return r.count(OutcomePass) }

// Failed returns the number of routes that failed
func (r Report) Failed() int { return r.count(OutcomeFail) }

// Skipped returns the number of routes that were not probed
func (r Report) Skipped() int { return r.count(OutcomeSkipped) }

// OK reports whether every route passed
func (r Report) OK() bool {
	return r.Failed() == 0 && r.Skipped() == 0
}

// Print writes an aligned result table followed by a summary line
func (r Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Route test against %s (trace %s)\n\n", r.BaseURL, r.TraceID)
	fmt.Fprintln(tw, "RESULT\tPORTAL\tROUTE\tSTATUS\tTIME\tDETAIL")
	for _, res := range r.Results {
		status := "-"
		if res.Status != 0 {
			status = fmt.Sprint(res.Status)
		}
		detail := res.Reason
		if detail == "" {
			detail = res.Title
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			outcomeLabel(res.Outcome),
			res.Route.Portal,
			res.Route.Path,
			status,
			res.Duration.Round(time.Millisecond),
			detail,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d skipped of %d routes in %s\n",
		r.Passed(), r.Failed(), r.Skipped(), len(r.Results), r.Elapsed.Round(time.Millisecond))
	return err
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomePass:
		return "PASS"
	case OutcomeFail:
		return "FAIL"
	default:
		return "SKIP"
	}
}

type reportJSON struct {
	BaseURL   string       `json:"baseUrl"`
	TraceID   string       `json:"traceId"`
	StartedAt time.Time    `json:"startedAt"`
	ElapsedMs float64      `json:"elapsedMs"`
	Passed    int          `json:"passed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Results   []resultJSON `json:"results"`
}

type resultJSON struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	Portal     Portal  `json:"portal"`
	URL        string  `json:"url"`
	Outcome    Outcome `json:"outcome"`
	Status     int     `json:"status,omitempty"`
	DurationMs float64 `json:"durationMs"`
	Title      string  `json:"title,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	SpanID     string  `json:"spanId"`
}

// JSON encodes the report for machine consumption
func (r Report) JSON() ([]byte, error) {
	out := reportJSON{
		BaseURL:   r.BaseURL,
		TraceID:   r.TraceID,
		StartedAt: r.Started.UTC(),
		ElapsedMs: milliseconds(r.Elapsed),
		Passed:    r.Passed(),
		Failed:    r.Failed(),
		Skipped:   r.Skipped(),
		Results:   make([]resultJSON, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, resultJSON{
			Name:       res.Route.Name,
			Path:       res.Route.Path,
			Portal:     res.Route.Portal,
			URL:        res.URL,
			Outcome:    res.Outcome,
			Status:     res.Status,
			DurationMs: milliseconds(res.Duration),
			Title:      res.Title,
			Reason:     res.Reason,
			SpanID:     res.SpanID,
		})
	}
	return sonic.ConfigStd.MarshalIndent(out, "", "  ")
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
