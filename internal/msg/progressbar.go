package msg

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar draws a one-line "[####----] 3/8 name" bar for a known number
// of steps.
type ProgressBar struct {
	Total      int
	Current    int
	Indent     int
	Start      time.Time
	W          io.Writer
	lastPrint  time.Time
	throbIndex int
}

var throbbers = []rune{'|', '/', '-', '\\'}

func NewProgressBar(total int, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total:     total,
		Indent:    indent,
		Start:     time.Now(),
		W:         w,
		lastPrint: time.Time{},
	}
}

// Step advances the bar by one and redraws it, at most every 40ms unless it
// just reached the total.
func (pb *ProgressBar) Step(label string) {
	pb.Current++
	if pb.Current >= pb.Total || time.Since(pb.lastPrint) > 40*time.Millisecond {
		pb.print(label, false)
		pb.lastPrint = time.Now()
	}
}

func (pb *ProgressBar) print(label string, finish bool) {
	width := 30
	percent := float64(pb.Current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(width)), width)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	fmt.Fprintf(pb.W, "\r\033[K%s[%s] %d/%d %c %s",
		strings.Repeat(" ", pb.Indent),
		bar,
		pb.Current,
		pb.Total,
		throb,
		label,
	)
}

func (pb *ProgressBar) Finish() {
	pb.print("done in "+time.Since(pb.Start).Round(time.Millisecond).String(), true)
	fmt.Fprintln(pb.W)
}
