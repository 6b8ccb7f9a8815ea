package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type AlertReport struct {
	Message string
	Time    time.Time
}

// PackView renders the download toggle and progress indicator on a
// terminal, redrawing in place on a ticker.
type PackView struct {
	mutex          sync.RWMutex
	out            io.Writer
	title          string
	fraction       float64
	progressHidden bool
	selected       bool
	toggleHidden   bool
	startTime      time.Time
	lastUpdated    time.Time
	alerts         []AlertReport
	completed      int

	numLines    int
	displayTick time.Duration // Interval between display updates
	doneCh      chan struct{} // Channel to signal stopping the display
	displayWg   sync.WaitGroup
	toggled     chan bool

	// log lines written while the display runs are held and printed above
	// the redrawn block
	logMu       sync.Mutex
	logOut      io.Writer
	displaying  bool
	pendingLogs bytes.Buffer
}

func NewPackView() *PackView {
	return newPackView(os.Stdout, os.Stderr)
}

func newPackView(out, logOut io.Writer) *PackView {
	return &PackView{
		out:            out,
		logOut:         logOut,
		title:          "Offline download",
		progressHidden: true,
		toggleHidden:   true,
		displayTick:    300 * time.Millisecond,
		doneCh:         make(chan struct{}),
		toggled:        make(chan bool, 1),
	}
}

func (v *PackView) SetTitle(title string) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.title = title
}

func (v *PackView) SetProgress(fraction float64) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.fraction = max(0, min(fraction, 1))
	v.lastUpdated = time.Now()
}

func (v *PackView) SetProgressHidden(hidden bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.progressHidden = hidden
}

func (v *PackView) SetToggleSelected(selected bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if selected && !v.selected {
		v.startTime = time.Now()
	}
	if !selected && v.selected && v.fraction >= 1 {
		v.completed++
	}
	v.selected = selected
	v.lastUpdated = time.Now()

	// keep only the latest state for the reader
	select {
	case <-v.toggled:
	default:
	}
	v.toggled <- selected
}

func (v *PackView) SetToggleHidden(hidden bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.toggleHidden = hidden
}

func (v *PackView) Alert(message string) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.alerts = append(v.alerts, AlertReport{Message: message, Time: time.Now()})
}

// Toggled delivers the toggle state after each change. Only the most recent
// state is kept when the reader falls behind.
func (v *PackView) Toggled() <-chan bool {
	return v.toggled
}

func (v *PackView) getStatusIndicator() string {
	switch {
	case len(v.alerts) > 0 && !v.selected:
		return errorStyle.Render(StyleSymbols["fail"])
	case v.selected:
		return pendingStyle.Render(StyleSymbols["pending"])
	case v.fraction >= 1:
		return successStyle.Render(StyleSymbols["pass"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (v *PackView) clearLines() {
	if v.numLines > 0 {
		fmt.Fprintf(v.out, "\033[%dA\033[J", v.numLines)
	}
	v.numLines = 0
}

func (v *PackView) render() []string {
	v.mutex.RLock()
	defer v.mutex.RUnlock()
	if v.toggleHidden {
		return nil
	}
	var lines []string
	elapsed := time.Duration(0)
	if !v.startTime.IsZero() {
		elapsed = time.Since(v.startTime).Round(time.Second)
		if !v.selected {
			elapsed = v.lastUpdated.Sub(v.startTime).Round(time.Second)
		}
	}
	var styledMessage string
	switch {
	case v.selected:
		styledMessage = pendingStyle.Render(v.title)
	case v.fraction >= 1:
		styledMessage = successStyle.Render(v.title + " complete")
	default:
		styledMessage = infoStyle.Render(v.title + " stopped")
	}
	lines = append(lines, fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", 2), v.getStatusIndicator(), debugStyle.Render(elapsed.String()), styledMessage))
	if !v.progressHidden {
		lines = append(lines, strings.Repeat(" ", 2+4)+PrintProgressBar(v.fraction, 30))
	}
	if n := len(v.alerts); n > 0 {
		for _, line := range wrapText(v.alerts[n-1].Message, 2+4) {
			lines = append(lines, strings.Repeat(" ", 2+4)+errorStyle.Render(line))
		}
	}
	return lines
}

type logWriter struct {
	v *PackView
}

func (w logWriter) Write(p []byte) (int, error) {
	w.v.logMu.Lock()
	defer w.v.logMu.Unlock()
	if w.v.displaying {
		return w.v.pendingLogs.Write(p)
	}
	return w.v.logOut.Write(p)
}

// LogWriter returns a writer for log output that does not tear the
// in-place display.
func (v *PackView) LogWriter() io.Writer {
	return logWriter{v: v}
}

func (v *PackView) flushLogs() {
	v.logMu.Lock()
	defer v.logMu.Unlock()
	if v.pendingLogs.Len() > 0 {
		v.out.Write(v.pendingLogs.Bytes())
		v.pendingLogs.Reset()
	}
}

func (v *PackView) updateDisplay() {
	lines := v.render()
	availableLines := getTerminalHeight() - 3 // Leave some buffer for prompt
	if len(lines) > availableLines {
		lines = lines[:max(availableLines, 1)]
	}
	v.clearLines()
	v.flushLogs()
	for _, line := range lines {
		fmt.Fprintln(v.out, line)
	}
	v.numLines = len(lines)
}

func (v *PackView) StartDisplay() {
	v.logMu.Lock()
	v.displaying = true
	v.logMu.Unlock()
	v.displayWg.Add(1)
	go func() {
		defer v.displayWg.Done()
		ticker := time.NewTicker(v.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				v.updateDisplay()
			case <-v.doneCh:
				v.updateDisplay()
				v.logMu.Lock()
				v.displaying = false
				v.logMu.Unlock()
				v.ShowSummary()
				return
			}
		}
	}()
}

func (v *PackView) StopDisplay() {
	close(v.doneCh)
	v.displayWg.Wait()
}

func (v *PackView) displayAlerts() {
	if len(v.alerts) == 0 {
		return
	}
	fmt.Fprintln(v.out)
	fmt.Fprintln(v.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, alert := range v.alerts {
		fmt.Fprintf(v.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", alert.Time.Format("15:04:05"))),
			errorStyle.Render(alert.Message))
	}
}

func (v *PackView) ShowSummary() {
	v.mutex.RLock()
	defer v.mutex.RUnlock()
	fmt.Fprintln(v.out)
	fmt.Fprintln(v.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d pack(s)", v.completed)))
	v.displayAlerts()
	fmt.Fprintln(v.out)
}
