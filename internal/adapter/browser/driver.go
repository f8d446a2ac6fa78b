// Package browser abstracts the controlled headful browser some adapters
// need for interactive login or catalog extraction. The driver is an
// injected collaborator, not a core entity; adapters that drive a single
// page run with effective concurrency 1.
package browser

import "context"

// Cookie is one browser cookie captured after login.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Driver opens pages. Implementations wrap a real browser automation
// backend; tests substitute fakes.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one controlled browser tab.
type Page interface {
	Goto(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, expression string) (string, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	Close() error
}
