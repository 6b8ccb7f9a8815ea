package output

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintProgressBar(t *testing.T) {
	assert.Contains(t, PrintProgressBar(0.5, 10), "50.0%")
	assert.Contains(t, PrintProgressBar(0.5, 10), strings.Repeat(StyleSymbols["hline"], 5))
	assert.Contains(t, PrintProgressBar(2, 10), "100.0%")
	assert.Contains(t, PrintProgressBar(-1, 10), "0.0%")
	assert.Contains(t, PrintProgressBar(1, 0), strings.Repeat(StyleSymbols["hline"], 30))
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapText("short", 6))
	long := strings.Repeat("x", 500)
	lines := wrapText(long, 6)
	require.Greater(t, len(lines), 1)
	assert.Equal(t, long, strings.Join(lines, ""))
}

func TestPackViewRender(t *testing.T) {
	v := newPackView(&bytes.Buffer{}, &bytes.Buffer{})
	assert.Empty(t, v.render(), "hidden toggle renders nothing")

	v.SetToggleHidden(false)
	v.SetTitle("Castle Rock")
	lines := v.render()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Castle Rock stopped")

	v.SetProgress(0)
	v.SetToggleSelected(true)
	v.SetProgressHidden(false)
	v.SetProgress(0.25)
	lines = v.render()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "25.0%")

	v.SetProgress(1)
	v.SetToggleSelected(false)
	v.SetProgressHidden(true)
	lines = v.render()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Castle Rock complete")
	assert.Equal(t, 1, v.completed)
}

func TestPackViewToggledKeepsLatest(t *testing.T) {
	v := newPackView(&bytes.Buffer{}, &bytes.Buffer{})
	v.SetToggleSelected(true)
	v.SetToggleSelected(false)
	v.SetToggleSelected(true)
	assert.True(t, <-v.Toggled())
	select {
	case s := <-v.Toggled():
		t.Fatalf("unexpected extra state %v", s)
	default:
	}
}

func TestPackViewAlertsInSummary(t *testing.T) {
	var out bytes.Buffer
	v := newPackView(&out, &bytes.Buffer{})
	v.SetToggleHidden(false)
	v.Alert("Could not create offline pack \"Offline Pack 1\": disk full")
	lines := v.render()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "disk full")

	v.StartDisplay()
	v.StopDisplay()
	assert.Contains(t, out.String(), "Errors:")
	assert.Contains(t, out.String(), "disk full")
	assert.Contains(t, out.String(), "Completed 0 pack(s)")
}

func TestLogWriterKeepsLogsAboveDisplay(t *testing.T) {
	var out, logOut bytes.Buffer
	v := newPackView(&out, &logOut)
	v.SetToggleHidden(false)
	v.SetTitle("Castle Rock")

	fmt.Fprintln(v.LogWriter(), "before display")
	assert.Equal(t, "before display\n", logOut.String())

	v.StartDisplay()
	fmt.Fprintln(v.LogWriter(), "WRN tile fetch failed")
	v.StopDisplay()
	fmt.Fprintln(v.LogWriter(), "after display")

	assert.NotContains(t, logOut.String(), "tile fetch failed")
	assert.Contains(t, logOut.String(), "after display")
	rendered := out.String()
	logAt := strings.Index(rendered, "WRN tile fetch failed")
	require.GreaterOrEqual(t, logAt, 0)
	// the log line is printed once, after the redraw cleared the block and
	// before the block is drawn again
	assert.Equal(t, 1, strings.Count(rendered, "WRN tile fetch failed"))
	assert.Less(t, logAt, strings.LastIndex(rendered, "Castle Rock stopped"))
}
