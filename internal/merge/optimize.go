package merge

import (
	"strings"

	"github.com/tourze/php-packer-sub000/internal/phpast"
)

// optimize implements spec.md §4.7's optional pass: a private method or
// property never referenced anywhere else in its own class body is dead
// weight once the class is standalone in the merged output, so it is
// dropped. Off by default (m.Optimize), since it is unsound in the presence
// of reflection over private members.
func (m *Merger) optimize(root *phpast.Node) {
	phpast.Walk(root, phpast.VisitorFunc(func(n *phpast.Node) bool {
		if n.Kind == phpast.KindClass {
			m.optimizeClass(n)
		}
		return true
	}))
}

func (m *Merger) optimizeClass(class *phpast.Node) {
	// Property declarations are skipped generically by the parser (no
	// KindProperty node is ever produced), so in practice this pass only
	// ever finds private methods to remove; OptimizedPrivateProperties stays
	// at zero until the parser grows property tracking.
	var private []*phpast.Node
	for _, c := range class.Children {
		switch c.Kind {
		case phpast.KindClassMethod, phpast.KindProperty:
			if c.Visibility == phpast.VisibilityPrivate {
				private = append(private, c)
			}
		}
	}
	if len(private) == 0 {
		return
	}

	// Referenced-ness is judged against the textual body of every OTHER
	// member (including other private members), per spec.md: a private
	// member used only by itself (e.g. pure recursion with no outside call)
	// is still dead weight.
	bodies := classBodyText(class)

	kept := class.Children[:0]
	for _, c := range class.Children {
		if isPrivateUnused(c, bodies) {
			if c.Kind == phpast.KindClassMethod {
				m.stats.OptimizedPrivateMethods++
			} else {
				m.stats.OptimizedPrivateProperties++
			}
			continue
		}
		kept = append(kept, c)
	}
	class.Children = kept
}

func isPrivateUnused(c *phpast.Node, bodies []memberBody) bool {
	if c.Visibility != phpast.VisibilityPrivate {
		return false
	}
	if c.Kind != phpast.KindClassMethod && c.Kind != phpast.KindProperty {
		return false
	}
	name := memberRefName(c)
	if name == "" {
		return false
	}
	for _, b := range bodies {
		if b.node == c {
			continue
		}
		if strings.Contains(b.text, name) {
			return false
		}
	}
	return true
}

func memberRefName(c *phpast.Node) string {
	if c.Kind == phpast.KindClassMethod {
		return c.MethodName
	}
	return c.Name
}

type memberBody struct {
	node *phpast.Node
	text string
}

// classBodyText returns one text blob per member, synthesised from the
// member's own subtree since the bundled parser doesn't retain full
// expression text; this mirrors the rest of the merger's reliance on coarse
// textual matching rather than a real use-def analysis.
func classBodyText(class *phpast.Node) []memberBody {
	out := make([]memberBody, 0, len(class.Children))
	for _, c := range class.Children {
		var sb strings.Builder
		phpast.Walk(c, phpast.VisitorFunc(func(n *phpast.Node) bool {
			sb.WriteString(n.Name)
			sb.WriteByte(' ')
			sb.WriteString(n.MethodName)
			sb.WriteByte(' ')
			sb.WriteString(n.RefName)
			sb.WriteByte(' ')
			return true
		}))
		out = append(out, memberBody{node: c, text: sb.String()})
	}
	return out
}
