// Package tray provides a system tray front-end for a capture session.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray mirrors the capture session in the system tray menu.
type Tray struct {
	onCapture func()
	onRetake  func()
	onQuit    func()
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuStatus  *systray.MenuItem
	menuCapture *systray.MenuItem
	menuRetake  *systray.MenuItem
}

// New creates a new Tray.
func New() *Tray {
	return &Tray{}
}

// OnCapture sets the callback for the manual capture menu item.
func (t *Tray) OnCapture(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCapture = fn
}

// OnRetake sets the callback for the retake menu item.
func (t *Tray) OnRetake(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRetake = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray and calls start once the menu exists.
// This function blocks until Quit is called.
func (t *Tray) Run(start func()) {
	systray.Run(func() {
		t.onReady()
		if start != nil {
			go start()
		}
	}, func() {})
}

// Quit stops the tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Autoselfie")
	systray.SetTooltip("Autoselfie capture session")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("Starting camera...", "Capture status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuCapture = systray.AddMenuItem("Capture now", "Take the photo manually")
	t.menuCapture.Hide()
	t.menuRetake = systray.AddMenuItem("Retake", "Discard the photo and try again")
	t.menuRetake.Disable()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Autoselfie")
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuCapture.ClickedCh:
				t.call(func() func() { return t.onCapture })
			case <-t.menuRetake.ClickedCh:
				t.call(func() func() { return t.onRetake })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// call runs the selected callback outside the lock.
func (t *Tray) call(pick func() func()) {
	t.mu.RLock()
	callback := pick()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetStatus updates the status line and enables retake when captured is set.
func (t *Tray) SetStatus(text string, captured bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus == nil {
		return
	}
	t.menuStatus.SetTitle(text)
	if captured {
		t.menuRetake.Enable()
		t.menuCapture.Hide()
	} else {
		t.menuRetake.Disable()
	}
}

// ShowCapture reveals the manual capture menu item.
func (t *Tray) ShowCapture() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuCapture != nil {
		t.menuCapture.Show()
	}
}
