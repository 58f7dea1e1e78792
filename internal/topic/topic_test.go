package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func match(t *testing.T, filterStr, nameStr string) bool {
	t.Helper()
	f, err := ParseFilter(filterStr)
	assert.NoError(t, err)
	n, err := ParseName(nameStr)
	assert.NoError(t, err)
	return Match(f, n)
}

func TestMultiLevelWildcard(t *testing.T) {
	assert.True(t, match(t, "sport/tennis/player1/#", "sport/tennis/player1"))
	assert.True(t, match(t, "sport/tennis/player1/#", "sport/tennis/player1/ranking"))
	assert.True(t, match(t, "sport/tennis/player1/#", "sport/tennis/player1/score/wimbledon"))
	assert.True(t, match(t, "sport/#", "sport"))
}

func TestSingleLevelWildcard(t *testing.T) {
	assert.True(t, match(t, "sport/tennis/+", "sport/tennis/player1"))
	assert.False(t, match(t, "sport/tennis/+", "sport/tennis/player1/ranking"))
}

func TestLeadingSlash(t *testing.T) {
	assert.True(t, match(t, "+/+", "/finance"))
	assert.True(t, match(t, "/+", "/finance"))
	assert.False(t, match(t, "+", "/finance"))
}

func TestDollarGuard(t *testing.T) {
	assert.False(t, match(t, "#", "$SYS"))
	assert.False(t, match(t, "+/monitor/Clients", "$SYS/monitor/Clients"))
	assert.True(t, match(t, "$SYS/#", "$SYS/anything/else"))
}

func TestParseFilterRejectsMisplacedHash(t *testing.T) {
	_, err := ParseFilter("sport/#/player1")
	assert.Error(t, err)
	_, err = ParseFilter("sport/#player1")
	assert.Error(t, err)
}

func TestParseNameRejectsWildcards(t *testing.T) {
	_, err := ParseName("sport/+/player1")
	assert.Error(t, err)
	_, err = ParseName("sport/#")
	assert.Error(t, err)
	_, err = ParseName("")
	assert.Error(t, err)
}
