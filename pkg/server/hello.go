package server

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

//go:embed pages/*.html
var embeddedPages embed.FS

// HelloConfig configures the hello routes.
type HelloConfig struct {
	// SleepDelay is how long GET /sleep holds its worker.
	SleepDelay time.Duration
	// PagesDir, when set, replaces the embedded hello.html and 404.html.
	PagesDir string
}

// Hello serves GET / and GET /sleep with hello.html and everything else
// with 404.html.
type Hello struct {
	hello    []byte
	notFound []byte
	delay    time.Duration
}

// NewHello loads the pages.
func NewHello(cfg HelloConfig) (*Hello, error) {
	var fsys fs.FS
	if cfg.PagesDir != "" {
		fsys = os.DirFS(cfg.PagesDir)
	} else {
		sub, err := fs.Sub(embeddedPages, "pages")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}

	hello, err := fs.ReadFile(fsys, "hello.html")
	if err != nil {
		return nil, fmt.Errorf("load hello page: %w", err)
	}
	notFound, err := fs.ReadFile(fsys, "404.html")
	if err != nil {
		return nil, fmt.Errorf("load 404 page: %w", err)
	}
	return &Hello{hello: hello, notFound: notFound, delay: cfg.SleepDelay}, nil
}

// Routes returns the paths served with hello.html.
func (h *Hello) Routes() []string {
	return []string{"/", "/sleep"}
}

// Handle is a Handler.
func (h *Hello) Handle(c *ConnContext) error {
	resp := c.Response
	resp.Header.SetContentType("text/html; charset=utf-8")

	if c.Method() != fasthttp.MethodGet {
		resp.SetStatusCode(fasthttp.StatusNotFound)
		resp.SetBody(h.notFound)
		return nil
	}

	switch c.Path() {
	case "/":
	case "/sleep":
		t := time.NewTimer(h.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-c.Context.Done():
			return c.Context.Err()
		}
	default:
		resp.SetStatusCode(fasthttp.StatusNotFound)
		resp.SetBody(h.notFound)
		return nil
	}

	resp.SetStatusCode(fasthttp.StatusOK)
	resp.SetBody(h.hello)
	return nil
}
