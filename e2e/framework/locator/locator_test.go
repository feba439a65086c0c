package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser/browsertest"
)

func TestParse(t *testing.T) {
	cases := []struct {
		raw  string
		want Spec
	}{
		{"css=.hero h1", CSS(".hero h1")},
		{".menu-item", CSS(".menu-item")},
		{"xpath=//footer", XPath("//footer")},
		{"//nav/a", XPath("//nav/a")},
		{"text=Visit Us", Text("Visit Us", false)},
		{`text="Visit Us"`, Text("Visit Us", true)},
		{"role=link", Role("link", "")},
		{`role=button[name="Subscribe"]`, Role("button", "Subscribe")},
		{".gallery img >> nth=2", CSS(".gallery img").At(2)},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{"", "   ", "css=", ".item >> nth=x", ".item >> nth=-1"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestFromValue(t *testing.T) {
	spec, err := FromValue(map[string]interface{}{"role": "link", "name": "Menu", "nth": 1})
	require.NoError(t, err)
	assert.Equal(t, Role("link", "Menu").At(1), spec)

	spec, err = FromValue(map[interface{}]interface{}{"text": "Our Story", "exact": true})
	require.NoError(t, err)
	assert.Equal(t, Text("Our Story", true), spec)

	spec, err = FromValue("css=footer")
	require.NoError(t, err)
	assert.Equal(t, CSS("footer"), spec)

	_, err = FromValue(map[string]interface{}{"css": "a", "text": "b"})
	assert.EqualError(t, err, "locator must set exactly one of text, css, xpath, role")
	_, err = FromValue(map[string]interface{}{"css": "a", "name": "x"})
	assert.EqualError(t, err, "name is only valid for role locators")
	_, err = FromValue(nil)
	assert.EqualError(t, err, "locator is required")
	_, err = FromValue(42)
	assert.Error(t, err)
}

func TestStringRoundTrips(t *testing.T) {
	for _, spec := range []Spec{
		CSS("nav a.active"),
		XPath("//footer//p"),
		Role("button", "Subscribe"),
		Role("navigation", ""),
		CSS(".menu-item").At(3),
	} {
		parsed, err := Parse(spec.String())
		require.NoError(t, err, spec.String())
		assert.Equal(t, spec, parsed)
	}
}

func TestResolveQueriesLiveDOM(t *testing.T) {
	dom := browsertest.NewDOM().
		Add("css:.menu-item", &browsertest.Node{Text: "Flat White"}, &browsertest.Node{Text: "Latte"}).
		Add("role:link:Menu", &browsertest.Node{Text: "Menu"})
	page := browsertest.NewPage(dom)

	el := Resolve(page, CSS(".menu-item").At(1))
	text, err := el.TextContent()
	require.NoError(t, err)
	assert.Equal(t, "Latte", text)

	count, err := Resolve(page, Role("link", "Menu")).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Nodes added after the element was built are seen on the next query.
	all := Resolve(page, CSS(".menu-item"))
	dom.Add("css:.menu-item", &browsertest.Node{Text: "Mocha"})
	count, err = all.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
