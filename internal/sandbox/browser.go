package sandbox

import (
	"context"
	"fmt"
	"strings"
)

// Browser operations supported by BrowserAction.
const (
	BrowserNavigate     = "navigate"
	BrowserGetText      = "get_text"
	BrowserScreenshot   = "screenshot"
	BrowserClick        = "click"
	BrowserFillForm     = "fill_form"
	BrowserExtractLinks = "extract_links"
)

const browserHeader = `from playwright.async_api import async_playwright
import asyncio

async def browser_task():
    playwright = await async_playwright().start()
    browser = await playwright.chromium.launch(headless=True)
    page = await browser.new_page()
`

const browserFooter = `
try:
    result = asyncio.run(browser_task())
    print(result)
except Exception as e:
    print(f"Browser error: {e}")
`

// BrowserAction performs one browser automation step by synthesizing a
// Playwright script and running it in the sandbox. Each call launches a
// fresh headless browser; no page state survives between actions.
func (s *Sandbox) BrowserAction(ctx context.Context, url, op, selector, value string) (string, error) {
	s.logger.Info("Browser action: %s on %s", op, url)

	script, err := browserScript(url, op, selector, value)
	if err != nil {
		return "", err
	}

	return s.ExecutePython(ctx, script)
}

func browserScript(url, op, selector, value string) (string, error) {
	var body strings.Builder
	body.WriteString(browserHeader)
	fmt.Fprintf(&body, "    await page.goto('%s', wait_until='networkidle')\n", pyString(url))

	switch op {
	case BrowserNavigate:
		body.WriteString("    content = await page.content()\n")
		body.WriteString("    await browser.close()\n")
		body.WriteString("    return content\n")

	case BrowserGetText:
		if selector == "" {
			selector = "body"
		}
		fmt.Fprintf(&body, "    element = await page.query_selector('%s')\n", pyString(selector))
		body.WriteString("    text = await element.inner_text() if element else \"Element not found\"\n")
		body.WriteString("    await browser.close()\n")
		body.WriteString("    return text\n")

	case BrowserScreenshot:
		body.WriteString("    await page.screenshot(path='/workspace/screenshot.png', full_page=True)\n")
		body.WriteString("    await browser.close()\n")
		body.WriteString("    return \"Screenshot saved to /workspace/screenshot.png\"\n")

	case BrowserClick:
		if selector == "" {
			return "", fmt.Errorf("selector is required for click")
		}
		fmt.Fprintf(&body, "    await page.click('%s')\n", pyString(selector))
		body.WriteString("    await page.wait_for_load_state('networkidle')\n")
		body.WriteString("    await browser.close()\n")
		fmt.Fprintf(&body, "    return \"Clicked on %s\"\n", pyString(selector))

	case BrowserFillForm:
		if selector == "" {
			return "", fmt.Errorf("selector is required for fill_form")
		}
		fmt.Fprintf(&body, "    await page.fill('%s', '%s')\n", pyString(selector), pyString(value))
		body.WriteString("    await browser.close()\n")
		fmt.Fprintf(&body, "    return \"Filled %s with value\"\n", pyString(selector))

	case BrowserExtractLinks:
		body.WriteString("    links = await page.query_selector_all('a[href]')\n")
		body.WriteString("    urls = [await link.get_attribute('href') for link in links]\n")
		body.WriteString("    await browser.close()\n")
		body.WriteString("    return '\\n'.join(urls[:50])\n")

	default:
		return "", fmt.Errorf("unsupported browser action: %q", op)
	}

	body.WriteString(browserFooter)
	return body.String(), nil
}

// pyString escapes s for embedding in a single-quoted Python string literal.
func pyString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
