package pagetext

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func extract(t *testing.T, html string) string {
	t.Helper()
	page, err := NewExtractor(nil).Extract(html, "https://example.com")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return page.Text
}

func TestExtract_RemovesScriptStyle(t *testing.T) {
	out := extract(t, `
<body>
    <div id="main">Hello</div>
    <script>alert("hi")</script>
    <style>.x {}</style>
</body>`)

	if strings.Contains(out, "alert") || strings.Contains(out, ".x {}") {
		t.Errorf("script/style content must be removed, output: %s", out)
	}
	if !strings.Contains(out, "Hello") {
		t.Errorf("expected to keep normal text, output: %s", out)
	}
}

func TestExtract_RemovesCommentsAndHidden(t *testing.T) {
	out := extract(t, `
<body>
    <!-- comment -->
    <div hidden>secret one</div>
    <div style="display: none">secret two</div>
    <span aria-hidden="true">secret three</span>
    <input type="hidden" name="csrf" value="tok">
    <div>Text</div>
</body>`)

	for _, s := range []string{"comment", "secret", "csrf"} {
		if strings.Contains(out, s) {
			t.Errorf("%q must be removed, output: %s", s, out)
		}
	}
	if !strings.Contains(out, "Text") {
		t.Errorf("visible text must be kept")
	}
}

func TestExtract_Outline(t *testing.T) {
	out := extract(t, `
<html><head><title> Flights </title></head>
<body>
    <h1>Search   flights</h1>
    <p>Find the <a href="/deals">best deals</a> today.</p>
    <form>
        <input type="text" name="from" placeholder="From">
        <input type="password" name="pw" value="hunter2">
        <button>Search</button>
    </form>
    <ul><li>One</li><li>Two</li></ul>
    <img src="x.png" alt="logo">
</body></html>`)

	want := []string{
		"# Search flights",
		"Find the [best deals](/deals) today.",
		`[input text name=from placeholder="From"]`,
		"[button: Search]",
		"- One",
		"- Two",
		"[image: logo]",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("expected %q in output:\n%s", w, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("password values must not leak")
	}
}

func TestExtract_Title(t *testing.T) {
	page, err := NewExtractor(nil).Extract(`<html><head><title> My Page </title></head><body>x</body></html>`, "https://e.com")
	if err != nil {
		t.Fatal(err)
	}
	if page.Title != "My Page" {
		t.Errorf("title = %q", page.Title)
	}
	if page.URL != "https://e.com" {
		t.Errorf("url = %q", page.URL)
	}
}

func TestExtract_Truncates(t *testing.T) {
	cfg := DefaultCleanConfig
	cfg.MaxOutputSize = 50
	body := "<body><p>" + strings.Repeat("word ", 100) + "</p></body>"

	page, err := NewExtractor(&cfg).Extract(body, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(page.Text, "(page text truncated)") {
		t.Errorf("expected truncation marker, got %q", page.Text)
	}
}

func TestExtract_TruncatesOnRuneBoundary(t *testing.T) {
	cfg := DefaultCleanConfig
	cfg.MaxOutputSize = 51
	body := "<body><p>" + strings.Repeat("привет ", 40) + "</p></body>"

	page, err := NewExtractor(&cfg).Extract(body, "")
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(page.Text) {
		t.Errorf("truncated text is not valid UTF-8: %q", page.Text)
	}
	if !strings.HasSuffix(page.Text, "(page text truncated)") {
		t.Errorf("expected truncation marker, got %q", page.Text)
	}
}
