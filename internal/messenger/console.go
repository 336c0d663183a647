// Package messenger holds front-end neutral Messenger implementations.
package messenger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Console prints texts to a writer and stores images as PNG files in Dir.
// With an empty Dir images are only announced.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	dir string
	seq int
	now func() time.Time
}

func NewConsole(out io.Writer, dir string) *Console {
	return &Console{out: out, dir: dir, now: time.Now}
}

func (c *Console) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c *Console) SendImage(_ context.Context, image []byte, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		_, err := fmt.Fprintf(c.out, "📷 %s (%d bytes, not saved)\n", caption, len(image))
		return err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	c.seq++
	name := fmt.Sprintf("%s-%02d.png", c.now().Format("20060102-150405"), c.seq)
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	_, err := fmt.Fprintf(c.out, "📷 %s -> %s\n", strings.TrimSpace(caption), path)
	return err
}
