package common

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; a cut at byte 7 lands inside it
	s := "Connecté"
	out := Truncate(s, 7)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "Connect...", out)

	assert.Equal(t, s, Truncate(s, len(s)))
	assert.Equal(t, "Identifiants", Truncate("Identifiants", 40))

	alert := "Mot de passe déjà utilisé"
	for n := 1; n < len(alert); n++ {
		assert.True(t, utf8.ValidString(CutAtRune(alert, n)), "cut at %d", n)
	}
	assert.Equal(t, "abc", CutAtRune("abc", 0))
}
