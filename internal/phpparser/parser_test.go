package phpparser

import (
	"testing"

	"github.com/tourze/php-packer-sub000/internal/phpast"
)

func findChild(n *phpast.Node, kind phpast.Kind) *phpast.Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// TestParseClassWithExtends covers S1: a single class with a base class in
// the same namespace.
func TestParseClassWithExtends(t *testing.T) {
	src := `<?php
namespace App;

class Widget extends BaseWidget
{
    public function render()
    {
        return true;
    }
}
`
	root, err := Parse("widget.php", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ns := findChild(root, phpast.KindNamespace)
	if ns == nil || ns.Name != "App" {
		t.Fatalf("expected namespace App, got %+v", ns)
	}
	cls := findChild(root, phpast.KindClass)
	if cls == nil {
		t.Fatalf("expected class node")
	}
	if cls.Name != "Widget" {
		t.Errorf("class name = %q", cls.Name)
	}
	if len(cls.Extends) != 1 || cls.Extends[0] != "BaseWidget" {
		t.Errorf("extends = %v", cls.Extends)
	}
	method := findChild(cls, phpast.KindClassMethod)
	if method == nil || method.MethodName != "render" {
		t.Errorf("expected render method, got %+v", method)
	}
}

// TestParseConditionalInclude covers S2: an include inside an if-branch is
// marked conditional and does not fatally prevent the rest of the file from
// parsing.
func TestParseConditionalInclude(t *testing.T) {
	src := `<?php
if (!function_exists('legacy_helper')) {
    require __DIR__ . '/legacy_helper.php';
}
`
	root, err := Parse("bootstrap.php", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cond := findChild(root, phpast.KindConditional)
	if cond == nil {
		t.Fatalf("expected conditional node")
	}
	branch := cond.Children[0]
	inc := findChild(branch, phpast.KindInclude)
	if inc == nil {
		t.Fatalf("expected include inside branch, got %+v", branch.Children)
	}
	if !inc.Conditional {
		t.Errorf("include should be marked conditional")
	}
	if inc.IncludeOp != "require" {
		t.Errorf("include op = %q", inc.IncludeOp)
	}
	if inc.IncludeArgKind != "dir" {
		t.Errorf("include arg kind = %q, want dir", inc.IncludeArgKind)
	}
	if len(inc.DirParts) != 1 || inc.DirParts[0] != "/legacy_helper.php" {
		t.Errorf("dir parts = %v", inc.DirParts)
	}
}

// TestParseUseImportsAndStaticCall covers name-resolution inputs: a `use`
// import feeding a static call reference.
func TestParseUseImportsAndStaticCall(t *testing.T) {
	src := `<?php
namespace App\Controllers;

use App\Services\Mailer;

class Sender
{
    public function send()
    {
        Mailer::dispatch();
        $obj = new Mailer();
    }
}
`
	root, err := Parse("sender.php", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	use := findChild(root, phpast.KindUseImport)
	if use == nil || len(use.Imports) != 1 || use.Imports[0].Name != "App\\Services\\Mailer" {
		t.Fatalf("expected use import, got %+v", use)
	}
	cls := findChild(root, phpast.KindClass)
	method := findChild(cls, phpast.KindClassMethod)
	if method == nil {
		t.Fatalf("expected method")
	}
	var sawStatic, sawNew bool
	// Each statement is wrapped in a Generic node, so search the whole
	// method subtree rather than only its direct children.
	phpast.Walk(method, phpast.VisitorFunc(func(c *phpast.Node) bool {
		if c.Kind == phpast.KindStaticCall && c.RefName == "Mailer" {
			sawStatic = true
		}
		if c.Kind == phpast.KindNewExpr && c.RefName == "Mailer" {
			sawNew = true
		}
		return true
	}))
	if !sawStatic {
		t.Errorf("expected static call reference to Mailer")
	}
	if !sawNew {
		t.Errorf("expected new-expr reference to Mailer")
	}
}

// TestParseDynamicInclude covers S5: an include whose argument is a
// variable, which must classify as "dynamic" rather than fatally fail.
func TestParseDynamicInclude(t *testing.T) {
	src := `<?php
$path = getModulePath();
include $path;
`
	root, err := Parse("loader.php", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	inc := findChild(root, phpast.KindInclude)
	if inc == nil {
		t.Fatalf("expected include node")
	}
	if inc.IncludeArgKind != "dynamic" {
		t.Errorf("include arg kind = %q, want dynamic", inc.IncludeArgKind)
	}
}

// TestParseDeclareDirective covers both forms of `declare(...)`: the
// statement form, which must not swallow what follows it, and the block
// form, whose wrapped statements must still be reachable as children.
func TestParseDeclareDirective(t *testing.T) {
	src := `<?php
declare(strict_types=1);

class Widget {}

declare(ticks=1) {
    class Gadget {}
}
`
	root, err := Parse("strict.php", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var directives []*phpast.Node
	for _, c := range root.Children {
		if c.Kind == phpast.KindDirective {
			directives = append(directives, c)
		}
	}
	if len(directives) != 2 {
		t.Fatalf("expected 2 directive nodes, got %d", len(directives))
	}
	if len(directives[0].Children) != 0 {
		t.Errorf("statement-form declare should have no children, got %+v", directives[0].Children)
	}

	if findChild(root, phpast.KindClass) == nil {
		t.Fatalf("expected Widget class to survive after the statement-form declare")
	}
	gadget := findChild(directives[1], phpast.KindClass)
	if gadget == nil || gadget.Name != "Gadget" {
		t.Fatalf("expected Gadget class nested under the block-form declare, got %+v", directives[1].Children)
	}
}

// TestParseInterfaceAndTrait covers interface extends-lists and trait use.
func TestParseInterfaceAndTrait(t *testing.T) {
	src := `<?php
namespace App;

interface Greets extends Named, Polite
{
    public function greet();
}

trait Loud
{
    public function shout()
    {
        echo "HI";
    }
}

class Person implements Greets
{
    use Loud;
}
`
	root, err := Parse("person.php", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	iface := findChild(root, phpast.KindInterface)
	if iface == nil || len(iface.Extends) != 2 {
		t.Fatalf("expected interface with 2 extends, got %+v", iface)
	}
	trait := findChild(root, phpast.KindTrait)
	if trait == nil || trait.Name != "Loud" {
		t.Fatalf("expected trait Loud, got %+v", trait)
	}
	var cls *phpast.Node
	for _, c := range root.Children {
		if c.Kind == phpast.KindClass {
			cls = c
		}
	}
	if cls == nil || len(cls.Implements) != 1 || cls.Implements[0] != "Greets" {
		t.Fatalf("expected class implementing Greets, got %+v", cls)
	}
	if len(cls.UseTraits) != 1 || cls.UseTraits[0] != "Loud" {
		t.Errorf("use traits = %v", cls.UseTraits)
	}
}
