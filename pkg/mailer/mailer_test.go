package mailer

import (
	"bytes"
	"errors"
	"io"
	"net/textproto"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/resilience"
)

func TestBuild(t *testing.T) {
	date := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	raw, id, err := Build(Message{
		From:    "Recruiting <jobs@acme.com>",
		To:      "jane@example.com",
		ReplyTo: "talent@acme.com",
		Subject: "Hello Jane",
		HTML:    "<p>Hi</p>",
		Text:    "Hi",
		Headers: map[string]string{"List-Unsubscribe": "<https://t.acme.com/u/1>"},
	}, date)
	require.NoError(t, err)
	assert.Contains(t, id, "@acme.com")

	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Hello Jane", subject)
	gotID, err := r.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "<https://t.acme.com/u/1>", r.Header.Get("List-Unsubscribe"))
	replyTo, err := r.Header.AddressList("Reply-To")
	require.NoError(t, err)
	require.Len(t, replyTo, 1)
	assert.Equal(t, "talent@acme.com", replyTo[0].Address)

	var types, bodies []string
	for {
		p, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		types = append(types, ct)
		bodies = append(bodies, string(b))
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, types)
	assert.Equal(t, []string{"Hi", "<p>Hi</p>"}, bodies)
}

func TestBuild_BadAddress(t *testing.T) {
	_, _, err := Build(Message{From: "not an address", To: "jane@example.com"}, time.Now())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want resilience.Class
	}{
		{"throttled", &textproto.Error{Code: 421, Msg: "4.7.0 Try again later"}, resilience.RateLimited},
		{"too many", &textproto.Error{Code: 452, Msg: "4.5.3 Too many recipients"}, resilience.RateLimited},
		{"greylisted", &textproto.Error{Code: 451, Msg: "4.7.1 Greylisted"}, resilience.Transient},
		{"no mailbox", &textproto.Error{Code: 550, Msg: "5.1.1 User unknown"}, resilience.Permanent},
		{"network", errors.New("connection reset by peer"), resilience.Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.Classify(classify(tt.err)))
		})
	}
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "acme.com", domainOf("jobs@acme.com"))
	assert.Equal(t, "localhost", domainOf("jobs"))
}
