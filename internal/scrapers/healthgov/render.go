package healthgov

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer returns the markup of a page after its scripts ran.
type Renderer interface {
	Render(ctx context.Context, pageURL string) ([]byte, error)
}

// RodRenderer renders pages in a headless chrome, launched for every render
// unless Remote holds the control url of a running one.
type RodRenderer struct {
	Remote string
}

func (r RodRenderer) Render(ctx context.Context, pageURL string) ([]byte, error) {
	controlURL := r.Remote
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch: %w", err)
		}
		defer func() {
			l.Kill()
			l.Cleanup()
		}()
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	err := browser.Connect()
	if err != nil {
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	if r.Remote == "" {
		defer browser.Close()
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("render: create page: %w", err)
	}
	defer page.Close()

	err = page.Navigate(pageURL)
	if err != nil {
		return nil, fmt.Errorf("render: navigate %s: %w", pageURL, err)
	}
	err = page.WaitLoad()
	if err != nil {
		return nil, fmt.Errorf("render: wait load: %w", err)
	}
	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return []byte(html), nil
}
