package autoload

import "testing"

func TestResolvePSR4(t *testing.T) {
	r := NewResolver().WithExistsFunc(func(path string) bool {
		return path == "/proj/src/Services/Mailer.php"
	})
	r.AddPSR4(`App\`, []string{"/proj/src"}, 100)

	got, ok := r.Resolve(`App\Services\Mailer`)
	if !ok {
		t.Fatalf("expected resolution")
	}
	if got != "/proj/src/Services/Mailer.php" {
		t.Errorf("got %q", got)
	}
}

func TestResolvePSR0UnderscoreSplitsLocalPart(t *testing.T) {
	r := NewResolver().WithExistsFunc(func(path string) bool {
		return path == "/proj/lib/Legacy/Foo/Bar.php"
	})
	r.AddPSR0("Legacy_", []string{"/proj/lib"}, 90)

	got, ok := r.Resolve("Legacy_Foo_Bar")
	if !ok {
		t.Fatalf("expected resolution")
	}
	if got != "/proj/lib/Legacy/Foo/Bar.php" {
		t.Errorf("got %q", got)
	}
}

func TestClassmapTakesPriorityOverPSR4(t *testing.T) {
	r := NewResolver().WithExistsFunc(func(string) bool { return true })
	r.AddPSR4(`App\`, []string{"/proj/src"}, 100)
	r.AddClassmapEntry(`App\Special`, "/proj/generated/Special.php")

	got, ok := r.Resolve(`App\Special`)
	if !ok || got != "/proj/generated/Special.php" {
		t.Fatalf("classmap entry should win, got %q ok=%v", got, ok)
	}
}

func TestResolveMissingReturnsFalse(t *testing.T) {
	r := NewResolver().WithExistsFunc(func(string) bool { return false })
	r.AddPSR4(`App\`, []string{"/proj/src"}, 100)
	if _, ok := r.Resolve(`App\Nope`); ok {
		t.Fatalf("expected no resolution")
	}
}

func TestPSR4PriorityOrderWins(t *testing.T) {
	r := NewResolver().WithExistsFunc(func(path string) bool {
		return path == "/vendor/pkg/src/Thing.php" || path == "/proj/src/Thing.php"
	})
	r.AddPSR4(`App\`, []string{"/vendor/pkg/src"}, 10)
	r.AddPSR4(`App\`, []string{"/proj/src"}, 100)

	got, ok := r.Resolve(`App\Thing`)
	if !ok {
		t.Fatalf("expected resolution")
	}
	if got != "/proj/src/Thing.php" {
		t.Errorf("expected higher-priority rule to win, got %q", got)
	}
}
