package tray

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/spectrum-osc/internal/app"
	"github.com/petems/spectrum-osc/internal/logging"
)

const stopTimeout = 5 * time.Second

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger
	ctx     context.Context

	// Menu items
	mStartStop *systray.MenuItem
	mTarget    *systray.MenuItem
	mCopy      *systray.MenuItem
	mDevices   *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle(startStopTitle(false))
	}
}

func (u *UI) SetStreaming() {
	u.updateStatus("streaming")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle(startStopTitle(true))
	}
}

func (u *UI) SetError() {
	u.updateStatus("error")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle(startStopTitle(false))
	}
}

func New(application *app.App, log zerolog.Logger, version, commit string) *UI {
	return &UI{
		app:     application,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// Run blocks on the tray event loop until Quit or ctx is cancelled. It must
// be called from the main goroutine.
func (u *UI) Run(ctx context.Context) error {
	u.ctx = ctx
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("Audio spectrum to OSC")

	u.mStartStop = systray.AddMenuItem(startStopTitle(false), "Start or stop sending the spectrum")
	systray.AddSeparator()

	u.mTarget = systray.AddMenuItem(targetTitle(u.app.Target()), "OSC destination")
	u.mTarget.Disable()
	u.mCopy = systray.AddMenuItem("Copy Target", "Copy host:port to the clipboard")

	u.mDevices = systray.AddMenuItem("Input Device", "Select audio device")
	u.buildDeviceMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Show Log Path", "Print the log file location")
	mAbout := systray.AddMenuItem("About", "About spectrum-osc")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.toggle()
		case <-u.mCopy.ClickedCh:
			u.copyTarget()
		case <-mLogs.ClickedCh:
			fmt.Println(logging.Path())
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) toggle() {
	ctx, cancel := context.WithTimeout(u.ctx, stopTimeout)
	defer cancel()

	if err := u.app.Toggle(ctx); err != nil {
		u.log.Error().Err(err).Msg("Toggle failed")
	}
}

func (u *UI) copyTarget() {
	target := u.app.Target()
	if err := clipboard.WriteAll(target); err != nil {
		u.log.Error().Err(err).Msg("Failed to write clipboard")
		return
	}
	u.log.Info().Str("target", target).Msg("Copied target to clipboard")
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	selected := u.app.Device()
	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, fmt.Sprintf("%d ch, %.0f Hz", dev.Channels, dev.SampleRate))
		if dev.ID == selected || (selected == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Cannot change audio device")
					continue
				}
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) showAbout() {
	fmt.Printf("spectrum-osc %s (%s)\nStreams the live audio spectrum as OSC to %s\n", u.version, u.commit, u.app.Target())
}

func (u *UI) onExit() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := u.app.Shutdown(ctx); err != nil {
		u.log.Error().Err(err).Msg("Shutdown error")
	}
}

// updateStatus sets the tray title with a level-meter glyph and status indicator
func (u *UI) updateStatus(status string) {
	systray.SetTitle(fmt.Sprintf("📶 %s", emojiForStatus(status)))
}

func startStopTitle(streaming bool) string {
	if streaming {
		return "Stop Streaming"
	}
	return "Start Streaming"
}

func targetTitle(target string) string {
	return "Target: " + target
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "streaming":
		return "🔴" // Red - live
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢"
	}
}
