package campaign

import (
	"fmt"
	"html"
)

// DefaultBody is the stock introduction email, signed by sender.
func DefaultBody(sender Address) string {
	return "<p>Dear Team,</p>" +
		"<p>At <strong>Miami Master Flooring</strong>, we specialize in high-end flooring installations across South Florida.</p>" +
		"<ul><li>Luxury vinyl plank (LVP)</li><li>Waterproof flooring</li><li>Custom tile and stone</li><li>10-year craftsmanship warranty</li></ul>" +
		"<p>Would a quick call next week work for you?</p>" +
		fmt.Sprintf("<p>Best regards,<br>%s<br>%s</p>", html.EscapeString(sender.Name), html.EscapeString(sender.Email))
}
