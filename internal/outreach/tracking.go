package outreach

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// sigBytes is the HMAC prefix kept in tracking signatures.
const sigBytes = 16

// Tracker builds and verifies the signed open, click and unsubscribe links
// embedded in outbound mail. The tracking id is the queue item id.
type Tracker struct {
	baseURL  string
	unsubURL string
	secret   []byte
}

// NewTracker creates a Tracker. unsubBaseURL defaults to baseURL.
func NewTracker(baseURL, unsubBaseURL, secret string) (*Tracker, error) {
	if baseURL == "" {
		return nil, eris.New("outreach: tracking base url is required")
	}
	if secret == "" {
		return nil, eris.New("outreach: tracking secret is required")
	}
	if unsubBaseURL == "" {
		unsubBaseURL = baseURL
	}
	return &Tracker{
		baseURL:  strings.TrimRight(baseURL, "/"),
		unsubURL: strings.TrimRight(unsubBaseURL, "/"),
		secret:   []byte(secret),
	}, nil
}

func (t *Tracker) sign(kind, id, target string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(kind + "\x00" + id + "\x00" + target))
	return hex.EncodeToString(mac.Sum(nil)[:sigBytes])
}

func (t *Tracker) verify(kind, id, target, sig string) bool {
	return hmac.Equal([]byte(t.sign(kind, id, target)), []byte(sig))
}

// OpenURL is the tracking pixel for id.
func (t *Tracker) OpenURL(id string) string {
	return t.baseURL + "/t/o/" + url.PathEscape(id) + ".gif?sig=" + t.sign("o", id, "")
}

// ClickURL redirects through the click tracker to target.
func (t *Tracker) ClickURL(id, target string) string {
	return t.baseURL + "/t/c/" + url.PathEscape(id) + "?u=" + url.QueryEscape(target) + "&sig=" + t.sign("c", id, target)
}

// UnsubscribeURL is the one-click unsubscribe link for id.
func (t *Tracker) UnsubscribeURL(id string) string {
	return t.unsubURL + "/u/" + url.PathEscape(id) + "?sig=" + t.sign("u", id, "")
}

func (t *Tracker) VerifyOpen(id, sig string) bool          { return t.verify("o", id, "", sig) }
func (t *Tracker) VerifyClick(id, target, sig string) bool { return t.verify("c", id, target, sig) }
func (t *Tracker) VerifyUnsubscribe(id, sig string) bool   { return t.verify("u", id, "", sig) }

// Instrument rewrites every absolute http(s) link in body through the click
// tracker, then appends an unsubscribe link and the open pixel to the end
// of <body>. It also returns the List-Unsubscribe headers for the message.
func (t *Tracker) Instrument(id, body string) (string, map[string]string, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", nil, eris.Wrap(err, "outreach: parse html")
	}

	var bodyNode *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Body:
				bodyNode = n
			case atom.A:
				t.rewriteLink(id, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if bodyNode == nil {
		return "", nil, eris.New("outreach: html has no body")
	}

	unsub := t.UnsubscribeURL(id)
	p := element(atom.P, html.Attribute{Key: "style", Val: "font-size:12px;color:#888"})
	a := element(atom.A, html.Attribute{Key: "href", Val: unsub})
	a.AppendChild(&html.Node{Type: html.TextNode, Data: "Unsubscribe"})
	p.AppendChild(a)
	bodyNode.AppendChild(p)
	bodyNode.AppendChild(element(atom.Img,
		html.Attribute{Key: "src", Val: t.OpenURL(id)},
		html.Attribute{Key: "width", Val: "1"},
		html.Attribute{Key: "height", Val: "1"},
		html.Attribute{Key: "alt", Val: ""},
		html.Attribute{Key: "style", Val: "display:none"},
	))

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", nil, eris.Wrap(err, "outreach: render html")
	}
	headers := map[string]string{
		"List-Unsubscribe":      "<" + unsub + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
	return buf.String(), headers, nil
}

func (t *Tracker) rewriteLink(id string, n *html.Node) {
	for i, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		href := strings.TrimSpace(attr.Val)
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			n.Attr[i].Val = t.ClickURL(id, href)
		}
		return
	}
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}
