package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailKey(t *testing.T) {
	assert.Equal(t, "jane@x.com", EmailKey("  Jane@X.com "))
	assert.Equal(t, "", EmailKey("   "))
}

func TestLinkedInKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.linkedin.com/in/JaneDoe/", "linkedin.com/in/janedoe"},
		{"http://linkedin.com/in/janedoe?trk=abc", "linkedin.com/in/janedoe"},
		{"linkedin.com/in/janedoe#about", "linkedin.com/in/janedoe"},
		{"  LINKEDIN.COM/in/janedoe// ", "linkedin.com/in/janedoe"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, LinkedInKey(tt.input))
		})
	}
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, NameKey("Jane", "Doe", "Acme"), NameKey(" JANE ", "doe", "ACME"))
	assert.Equal(t, NameKey("Jürgen", "Straße", "Acme"), NameKey("JÜRGEN", "STRASSE", "acme"))
	assert.Empty(t, NameKey("Jane", "Doe", ""))
	assert.Empty(t, NameKey("", "Doe", "Acme"))
}

func TestCandidate_Keys(t *testing.T) {
	c := Candidate{FirstName: "Jane", LastName: "Doe", Email: "JANE@x.com", LinkedInURL: "https://linkedin.com/in/jane/", CurrentCompany: "Acme"}
	email, li, name := c.Keys()
	assert.Equal(t, "jane@x.com", email)
	assert.Equal(t, "linkedin.com/in/jane", li)
	assert.Equal(t, "jane|doe|acme", name)
}
