package search

import "strings"

// BlockType identifies the kind of bot wall an engine served instead of
// results.
type BlockType string

const (
	BlockNone      BlockType = ""
	BlockCaptcha   BlockType = "captcha"
	BlockChallenge BlockType = "challenge"
	BlockRateLimit BlockType = "unusual_traffic"
	BlockJSShell   BlockType = "js_shell"
)

var (
	challengeMarkers = []string{
		"checking your browser",
		"cf-browser-verification",
		"just a moment...",
	}
	captchaMarkers = []string{
		"captcha",
		"anomaly-modal",
	}
	trafficMarkers = []string{
		"unusual traffic from your computer network",
		"/sorry/index",
	}
)

// DetectBlock inspects a results page body and reports whether it is a bot
// wall. Callers only consult it for pages that produced no result links.
func DetectBlock(body string) BlockType {
	lower := strings.ToLower(body)

	for _, m := range trafficMarkers {
		if strings.Contains(lower, m) {
			return BlockRateLimit
		}
	}
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return BlockChallenge
		}
	}
	for _, m := range captchaMarkers {
		if strings.Contains(lower, m) {
			return BlockCaptcha
		}
	}

	// JS-only shell: tiny body asking for javascript or refreshing away.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}
