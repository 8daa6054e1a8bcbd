package browser

import (
	"context"
	"time"
)

// Page is the slice of browser automation the scraper needs. Selectors use
// Playwright syntax, so `button:has-text("Aceptar")` works as well as CSS.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	Exists(selector string) (bool, error)
	Click(selector string) error
	Fill(selector, value string) error
	WaitForNetworkIdle(timeout time.Duration) error
	Content() (string, error)
	// Text returns the rendered text of the document body.
	Text() (string, error)
	ScrollHeight() (int, error)
	ScrollTo(y int) error
	ScrollToBottom() error
	Screenshot(path string) error
	URL() string
	Close() error
}

// Launcher opens an isolated browser session with a single page.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}
