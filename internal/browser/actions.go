package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// WaitVisible waits for an element to be visible
func (c *Controller) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := c.runContext(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for element failed for selector '%s': %w", selector, err)
	}
	return nil
}

// Click performs a click at the center of the element
func (c *Controller) Click(ctx context.Context, selector string) error {
	runCtx, cancel := c.runContext(ctx, actionTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click failed on selector '%s': %w", selector, err)
	}
	return nil
}

// Clear focuses the field and removes its content with Ctrl+A, Delete
func (c *Controller) Clear(ctx context.Context, selector string) error {
	runCtx, cancel := c.runContext(ctx, actionTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Delete),
	)
	if err != nil {
		return fmt.Errorf("clear failed on selector '%s': %w", selector, err)
	}
	return nil
}

// Type enters text into an input field one key at a time
func (c *Controller) Type(ctx context.Context, selector, text string, keyDelay time.Duration) error {
	timeout := actionTimeout + time.Duration(len(text))*keyDelay
	runCtx, cancel := c.runContext(ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Focus(selector, chromedp.ByQuery, chromedp.NodeVisible),
	}
	for _, r := range text {
		actions = append(actions, chromedp.KeyEvent(string(r)))
		if keyDelay > 0 {
			actions = append(actions, chromedp.Sleep(keyDelay))
		}
	}

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("type failed on selector '%s': %w", selector, err)
	}
	return nil
}

// FindAll collects the nodes matching selector together with their rendered
// text and keeps the ones accepted by match.
func (c *Controller) FindAll(ctx context.Context, selector string, match func(text string) bool) ([]Element, error) {
	runCtx, cancel := c.runContext(ctx, actionTimeout)
	defer cancel()

	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("encode selector: %w", err)
	}
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => e.innerText || e.textContent || "")`, quoted)

	var nodes []*cdp.Node
	var texts []string
	err = chromedp.Run(runCtx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
		chromedp.Evaluate(script, &texts),
	)
	if err != nil {
		return nil, fmt.Errorf("find elements failed for selector '%s': %w", selector, err)
	}

	// The list may re-render between the two queries.
	n := min(len(nodes), len(texts))
	var found []Element
	for i := 0; i < n; i++ {
		if match(texts[i]) {
			found = append(found, &chromedpElement{ctrl: c, node: nodes[i], text: texts[i]})
		}
	}
	return found, nil
}

type chromedpElement struct {
	ctrl *Controller
	node *cdp.Node
	text string
}

func (e *chromedpElement) Text() string {
	return e.text
}

func (e *chromedpElement) Click(ctx context.Context) error {
	runCtx, cancel := e.ctrl.runContext(ctx, actionTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("click failed on element %q: %w", e.text, err)
	}
	return nil
}
