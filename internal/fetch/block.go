package fetch

import (
	"bytes"
	"net/http"
)

// BlockType describes why a response is not usable page content.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// jsShellMax is the body size under which a script-only page counts as a shell.
const jsShellMax = 2048

// DetectBlock inspects a response for anti-bot challenges and JS-only shells.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			header.Get("server") == "cloudflare" {
			return BlockCloudflare
		}
	}

	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("checking your browser")) ||
		bytes.Contains(lower, []byte("cf-browser-verification")) ||
		(bytes.Contains(lower, []byte("cloudflare")) && bytes.Contains(lower, []byte("challenge"))) {
		return BlockCloudflare
	}
	if bytes.Contains(lower, []byte("g-recaptcha")) || bytes.Contains(lower, []byte("h-captcha")) ||
		bytes.Contains(lower, []byte("captcha-container")) {
		return BlockCaptcha
	}

	if len(body) < jsShellMax {
		if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) {
			return BlockJSShell
		}
		if bytes.Contains(lower, []byte(`id="root"></div>`)) || bytes.Contains(lower, []byte(`id="app"></div>`)) {
			return BlockJSShell
		}
	}
	return BlockNone
}
