package xml2rfc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/pkg/models"
	"bibxml/pkg/utils"
)

func TestAliases(t *testing.T) {
	a := NewAliases([]utils.AliasEntry{
		{Name: "rfcs", Aliases: []string{"bibxml"}},
		{Name: "internet-drafts", Aliases: []string{"bibxml3", "bibxml-ids"}},
	}, "misc", "rfcs")

	for name, want := range map[string]string{
		"rfcs":            "rfcs",
		"bibxml":          "rfcs",
		"bibxml3":         "internet-drafts",
		"bibxml-ids":      "internet-drafts",
		"internet-drafts": "internet-drafts",
		"misc":            "misc",
	} {
		got, err := a.Unalias(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := a.Unalias("bibxml99")
	var unknown *models.UnknownAliasError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "bibxml99", unknown.Name)

	assert.Equal(t, []string{"bibxml3", "bibxml-ids"}, a.GetAliases("internet-drafts"))
	assert.Empty(t, a.GetAliases("misc"))
	assert.Empty(t, a.GetAliases("unknown"))
	assert.Equal(t, []string{"rfcs", "internet-drafts", "misc"}, a.Canonical())
}

func TestAliases_GetAliasesReturnsCopy(t *testing.T) {
	a := NewAliases([]utils.AliasEntry{{Name: "rfcs", Aliases: []string{"bibxml"}}})
	got := a.GetAliases("rfcs")
	got[0] = "changed"
	assert.Equal(t, []string{"bibxml"}, a.GetAliases("rfcs"))
}

func TestCheckAliases(t *testing.T) {
	entries := []utils.AliasEntry{
		{Name: "rfcs", Aliases: []string{"bibxml"}},
		{Name: "misc", Aliases: []string{"bibxml2"}},
	}
	assert.NoError(t, CheckAliases(entries, "rfcs", "misc", "doi"))

	entries[1].Aliases = append(entries[1].Aliases, "doi")
	err := CheckAliases(entries, "rfcs", "misc", "doi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"doi"`)
}

func TestNewRegistry(t *testing.T) {
	rfc := &fakeFetcher{name: "rfc_fetcher", dataset: "rfcs"}
	misc := &fakeFetcher{name: "misc_fetcher", dataset: "misc"}

	reg, err := NewRegistry(rfc, misc)
	require.NoError(t, err)
	assert.Equal(t, []string{"rfcs", "misc"}, reg.Datasets())

	f, ok := reg.Get("misc")
	require.True(t, ok)
	assert.Equal(t, "misc_fetcher", f.Name())

	_, ok = reg.Get("bibxml")
	assert.False(t, ok)
}

func TestNewRegistry_Rejects(t *testing.T) {
	_, err := NewRegistry(
		&fakeFetcher{name: "a", dataset: "rfcs"},
		&fakeFetcher{name: "b", dataset: "rfcs"},
	)
	assert.ErrorContains(t, err, "already served by a")

	_, err = NewRegistry(&fakeFetcher{name: "a"})
	assert.ErrorContains(t, err, "empty dataset")
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		file   string
		anchor string
		ok     bool
	}{
		{"reference.RFC1234.xml", "RFC1234", true},
		{"_reference.RFC.1234.xml", "RFC.1234", true},
		{"reference.I-D.ietf-foo-bar.xml", "I-D.ietf-foo-bar", true},
		{"reference..xml", "", false},
		{"ref.RFC1234.xml", "", false},
		{"reference.RFC1234.json", "", false},
	}
	for _, tt := range tests {
		anchor, ok := ParseFilename(tt.file)
		assert.Equal(t, tt.ok, ok, tt.file)
		assert.Equal(t, tt.anchor, anchor, tt.file)
	}
}

func TestCanonicalSubpath(t *testing.T) {
	a := NewAliases([]utils.AliasEntry{{Name: "rfcs", Aliases: []string{"bibxml"}}})

	got, err := CanonicalSubpath(a, "bibxml/reference.RFC1.xml")
	require.NoError(t, err)
	assert.Equal(t, "rfcs/reference.RFC1.xml", got)

	_, err = CanonicalSubpath(a, "reference.RFC1.xml")
	assert.Error(t, err)

	_, err = CanonicalSubpath(a, "bibxml42/reference.RFC1.xml")
	assert.Error(t, err)
}

func TestReplaceAnchor(t *testing.T) {
	assert.Equal(t,
		`<reference anchor="NEW"><x anchor="OLD"/></reference>`,
		ReplaceAnchor(`<reference anchor="OLD"><x anchor="OLD"/></reference>`, "NEW"))
	assert.Equal(t,
		`<reference><front/></reference>`,
		ReplaceAnchor(`<reference><front/></reference>`, "NEW"))
	assert.Equal(t,
		`<reference anchor="NEW"/>`,
		ReplaceAnchor(`<reference anchor=""/>`, "NEW"))
}
