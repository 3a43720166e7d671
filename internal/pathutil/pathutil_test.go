package pathutil

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"a/./b":        "a/b",
		"a//b":         "a/b",
		"a\\b\\c":      "a/b/c",
		"a/b/../c":     "a/c",
		"../a":         "../a",
		"../../a":      "../../a",
		"a/../../b":    "../b",
		"/a/../../b":   "/b",
		"/a/b/":        "/a/b/",
		"":             ".",
		".":            ".",
		"/":            "/",
		"a/b/c/../../": "a/",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, p := range []string{"a/./b/../c", "/x/y/../../z", "rel/path", "../up"} {
		once := Normalize(p)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", p, once, twice)
		}
	}
}

func TestIsAbsolute(t *testing.T) {
	cases := map[string]bool{
		"/a/b":    true,
		"a/b":     false,
		"C:/a/b":  true,
		"C:\\a\\b": true,
		"x:y":     true,
		".":       false,
	}
	for in, want := range cases {
		if got := IsAbsolute(in); got != want {
			t.Errorf("IsAbsolute(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMakeAbsolute(t *testing.T) {
	if got := MakeAbsolute("src/a.php", "/proj"); got != "/proj/src/a.php" {
		t.Errorf("got %q", got)
	}
	if got := MakeAbsolute("/abs/a.php", "/proj"); got != "/abs/a.php" {
		t.Errorf("got %q", got)
	}
}

func TestRelativeTo(t *testing.T) {
	if got := RelativeTo("/proj/src/a.php", "/proj"); got != "src/a.php" {
		t.Errorf("got %q", got)
	}
	if got := RelativeTo("/other/a.php", "/proj"); got != "/other/a.php" {
		t.Errorf("got %q", got)
	}
	if got := RelativeTo("/proj", "/proj"); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestRoundTripUnderRoot(t *testing.T) {
	root := "/proj"
	for _, p := range []string{"/proj/src/a.php", "/proj/vendor/x/y.php", "/proj"} {
		rel := RelativeTo(p, root)
		back := MakeAbsolute(rel, root)
		if back != Normalize(p) {
			t.Errorf("round trip failed for %q: got %q", p, back)
		}
	}
}

func TestDir(t *testing.T) {
	cases := map[string]string{
		"a/b/c.php": "a/b",
		"c.php":     ".",
		"/a.php":    "/",
	}
	for in, want := range cases {
		if got := Dir(in); got != want {
			t.Errorf("Dir(%q) = %q, want %q", in, got, want)
		}
	}
}
