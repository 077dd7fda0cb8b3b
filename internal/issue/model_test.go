package issue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	version, name, err := ParseID("0.2-fix-login-redirect")
	require.NoError(t, err)
	assert.Equal(t, "0.2", version)
	assert.Equal(t, "fix-login-redirect", name)

	for _, bad := range []string{"", "nohyphen", "-name", "0.1-", "0.1-../etc", "0.1-a/b"} {
		_, _, err := ParseID(bad)
		assert.Truef(t, errors.Is(err, ErrInvalidID), "ParseID(%q) = %v", bad, err)
	}
}

func TestValidateVersion(t *testing.T) {
	assert.NoError(t, ValidateVersion("1.4.0"))
	assert.Error(t, ValidateVersion(""))
	assert.Error(t, ValidateVersion("1.0-rc1"))
	assert.Error(t, ValidateVersion(".hidden"))
}

func TestSortOrdersByVersionThenName(t *testing.T) {
	issues := []Issue{
		{ID: "0.10-a", Version: "0.10", Name: "a"},
		{ID: "backlog-a", Version: "backlog", Name: "a"},
		{ID: "0.9-b", Version: "0.9", Name: "b"},
		{ID: "0.9-a", Version: "0.9", Name: "a"},
	}
	Sort(issues)

	var ids []string
	for _, iss := range issues {
		ids = append(ids, iss.ID)
	}
	assert.Equal(t, []string{"0.9-a", "0.9-b", "0.10-a", "backlog-a"}, ids)
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, -1, CompareVersions("1.2.0", "1.10.0"))
	assert.Equal(t, 0, CompareVersions("v1.0.0", "v1.0.0"))
	assert.Equal(t, 1, CompareVersions("next", "2.0"))
	assert.Equal(t, -1, CompareVersions("alpha", "beta"))
}
