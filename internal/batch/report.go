package batch

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteTable prints one line per scored item followed by the totals.
func WriteTable(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "%-30s%-17s%-10s%s\n", "Filename", "Type", "BIoU", "Correct")
	fmt.Fprintln(w, strings.Repeat("-", 64))
	for _, r := range s.Results {
		if r.Skipped() {
			continue
		}
		verdict := "NO"
		if r.Correct {
			verdict = "YES"
		}
		fmt.Fprintf(w, "%-30s%-17s%-10.3f%s\n", r.Name(), string(r.Label)+"|"+string(r.Mode), r.Score, verdict)
	}
	WriteSummary(w, s)
}

// WriteSummary prints the totals and skip counts.
func WriteSummary(w io.Writer, s *Summary) {
	bar := strings.Repeat("=", 40)
	fmt.Fprintf(w, "\n%s\n", bar)
	fmt.Fprintf(w, "TOTAL FILES  : %d\n", s.Total)
	fmt.Fprintf(w, "CORRECT      : %d\n", s.Correct)
	fmt.Fprintf(w, "FINAL ACCURACY = %.4f\n", s.Accuracy())
	if n := s.SkippedTotal(); n > 0 {
		fmt.Fprintf(w, "SKIPPED      : %d\n", n)
		reasons := make([]string, 0, len(s.Skipped))
		for r := range s.Skipped {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(w, "  %-20s %d\n", r, s.Skipped[r])
		}
	}
	fmt.Fprintln(w, bar)
}
