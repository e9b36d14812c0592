package formfield

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodPage is a Reader over a live page in a headless browser. Values are
// read from each element's current value property, so text typed into
// the form after load is visible.
type RodPage struct {
	browser *rod.Browser
	page    *rod.Page
	owned   bool
}

// describeJS returns tag, attributes, live value and text in one round
// trip.
const describeJS = `() => {
	const attrs = {};
	for (const attr of this.attributes) {
		attrs[attr.name] = attr.value;
	}
	return {
		tag: this.tagName.toLowerCase(),
		attrs: attrs,
		value: this.value === undefined || this.value === null ? "" : String(this.value),
		text: this.innerText || this.textContent || "",
	};
}`

// OpenRodPage connects to the browser at controlURL (launching a local
// headless browser when it is empty) and opens pageURL.
func OpenRodPage(ctx context.Context, controlURL, pageURL string) (*RodPage, error) {
	owned := false
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		owned = true
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("open page %s: %w", pageURL, err)
	}
	_ = page.WaitStable(2 * time.Second)

	return &RodPage{browser: browser, page: page, owned: owned}, nil
}

// Lookup implements Reader.
func (p *RodPage) Lookup(ctx context.Context, sel string) ([]Element, error) {
	if _, err := compileSelector(sel); err != nil {
		return nil, err
	}

	els, err := p.page.Context(ctx).Elements(sel)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", sel, err)
	}

	out := make([]Element, 0, len(els))
	for _, el := range els {
		res, err := el.Eval(describeJS)
		if err != nil {
			return nil, fmt.Errorf("describe %q: %w", sel, err)
		}
		obj := res.Value.Map()
		attrs := make(map[string]string)
		for k, v := range obj["attrs"].Map() {
			attrs[k] = v.Str()
		}
		out = append(out, Element{
			Tag:   obj["tag"].Str(),
			ID:    attrs["id"],
			Name:  attrs["name"],
			Value: obj["value"].Str(),
			Text:  obj["text"].Str(),
			Attrs: attrs,
		})
	}
	return out, nil
}

// Close closes the page, and the browser too when OpenRodPage launched
// it.
func (p *RodPage) Close() error {
	err := p.page.Close()
	if p.owned && p.browser != nil {
		if cerr := p.browser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
