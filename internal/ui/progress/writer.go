package progress

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/ui/styles"
)

// Sender delivers messages to a running program; *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// ByteProgress returns a download callback that reports byte progress to
// s as SubProgressMsg. Updates are sent every percent.
func ByteProgress(s Sender) addons.DownloadProgress {
	lastUpdate := -1.0
	return func(downloaded, total int64) {
		msg, ok := byteProgressMsg(downloaded, total, &lastUpdate)
		if ok {
			s.Send(msg)
		}
	}
}

func byteProgressMsg(downloaded, total int64, lastUpdate *float64) (SubProgressMsg, bool) {
	if total <= 0 {
		// Unknown length: show the running count without a bar.
		return SubProgressMsg{Percent: 0, Detail: styles.FormatBytes(downloaded)}, true
	}

	percent := float64(downloaded) / float64(total) * 100
	if percent > 100 {
		percent = 100
	}
	if percent-*lastUpdate < 1 && percent < 100 {
		return SubProgressMsg{}, false
	}
	*lastUpdate = percent

	return SubProgressMsg{
		Percent: percent,
		Detail:  styles.FormatBytes(downloaded) + " / " + styles.FormatBytes(total),
	}, true
}
