package ast

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Print writes n back out as C source.
func Print(w io.Writer, n *Node) {
	p := &printer{}
	p.node(n)
	io.WriteString(w, p.sb.String())
}

// String returns the C source form of n.
func String(n *Node) string {
	var sb strings.Builder
	Print(&sb, n)
	return sb.String()
}

type printer struct {
	sb     strings.Builder
	indent int
}

func (p *printer) printf(format string, args ...interface{}) { fmt.Fprintf(&p.sb, format, args...) }

func (p *printer) line(format string, args ...interface{}) {
	p.sb.WriteString(strings.Repeat("    ", p.indent))
	p.printf(format, args...)
	p.sb.WriteByte('\n')
}

func (s TypeSpec) String() string {
	if s.Enum != "" {
		return "enum " + s.Enum
	}
	return s.Kind.String()
}

func (p *printer) node(n *Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case TranslationUnit:
		for i, d := range n.Data.(TranslationUnitNode).Decls {
			if i > 0 {
				p.sb.WriteByte('\n')
			}
			p.node(d)
		}
	case FuncDef:
		d := n.Data.(FuncDefNode)
		p.line("%s %s", d.Spec, p.declarator(d.Decl))
		p.node(d.Body)
	case Declaration:
		d := n.Data.(DeclarationNode)
		spec := d.Spec.String()
		if d.Enum != nil {
			spec = p.enumBody(d.Enum)
		}
		parts := make([]string, len(d.Decls))
		for i, decl := range d.Decls {
			parts[i] = p.declarator(decl)
		}
		if len(parts) == 0 {
			p.line("%s;", spec)
			return
		}
		p.line("%s %s;", spec, strings.Join(parts, ", "))
	case EnumDecl:
		p.line("%s;", p.enumBody(n))
	case Block:
		p.line("{")
		p.indent++
		for _, s := range n.Data.(BlockNode).Stmts {
			p.node(s)
		}
		p.indent--
		p.line("}")
	case ExprStmt:
		p.line("%s;", p.expr(n.Data.(ExprStmtNode).Expr))
	case If:
		d := n.Data.(IfNode)
		p.line("if (%s)", p.expr(d.Cond))
		p.body(d.Then)
		if d.Else != nil {
			p.line("else")
			p.body(d.Else)
		}
	case While:
		d := n.Data.(WhileNode)
		p.line("while (%s)", p.expr(d.Cond))
		p.body(d.Body)
	case DoWhile:
		d := n.Data.(DoWhileNode)
		p.line("do")
		p.body(d.Body)
		p.line("while (%s);", p.expr(d.Cond))
	case For:
		d := n.Data.(ForNode)
		init := ""
		if d.Init != nil {
			var sub printer
			sub.node(d.Init)
			init = strings.TrimSuffix(strings.TrimSpace(sub.sb.String()), ";")
		}
		p.line("for (%s; %s; %s)", init, p.expr(d.Cond), p.expr(d.Update))
		p.body(d.Body)
	case Switch:
		d := n.Data.(SwitchNode)
		p.line("switch (%s)", p.expr(d.Expr))
		p.line("{")
		p.indent++
		for _, s := range d.Body {
			p.node(s)
		}
		p.indent--
		p.line("}")
	case Case:
		p.indent--
		p.line("case %s:", p.expr(n.Data.(CaseNode).Value))
		p.indent++
	case Default:
		p.indent--
		p.line("default:")
		p.indent++
	case Break:
		p.line("break;")
	case Continue:
		p.line("continue;")
	case Return:
		if e := n.Data.(ReturnNode).Expr; e != nil {
			p.line("return %s;", p.expr(e))
		} else {
			p.line("return;")
		}
	default:
		p.line("%s;", p.expr(n))
	}
}

func (p *printer) body(n *Node) {
	if n != nil && n.Type == Block {
		p.node(n)
		return
	}
	p.indent++
	p.node(n)
	p.indent--
}

func (p *printer) enumBody(n *Node) string {
	d := n.Data.(EnumDeclNode)
	members := make([]string, len(d.Members))
	for i, m := range d.Members {
		members[i] = m.Name
		if m.Value != nil {
			members[i] += " = " + p.expr(m.Value)
		}
	}
	name := "enum"
	if d.Name != "" {
		name += " " + d.Name
	}
	return fmt.Sprintf("%s { %s }", name, strings.Join(members, ", "))
}

func (p *printer) declarator(n *Node) string {
	d := n.Data.(DeclaratorNode)
	s := strings.Repeat("*", d.Ptr) + d.Name
	if d.Array {
		s += "[" + p.expr(d.Size) + "]"
	}
	if d.Func {
		params := make([]string, len(d.Params))
		for i, prm := range d.Params {
			pd := prm.Data.(ParamNode)
			params[i] = strings.TrimSpace(pd.Spec.String() + " " + strings.Repeat("*", pd.Ptr) + pd.Name)
		}
		if len(params) == 0 {
			params = []string{"void"}
		}
		s += "(" + strings.Join(params, ", ") + ")"
	}
	if d.Init != nil {
		s += " = " + p.expr(d.Init)
	}
	return s
}

// expr renders an expression, parenthesizing every nested binary operand so
// the output parses back to the same tree.
func (p *printer) expr(n *Node) string {
	if n == nil {
		return ""
	}
	switch d := n.Data.(type) {
	case IdentNode:
		return d.Name
	case IntConstNode:
		s := strconv.FormatInt(d.Value, 10)
		if d.Unsigned {
			s += "u"
		}
		return s
	case FloatConstNode:
		s := strconv.FormatFloat(d.Value, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		if d.Single {
			s += "f"
		}
		return s
	case CharConstNode:
		return quoteChar(d.Value)
	case StringConstNode:
		return strconv.Quote(d.Value)
	case BinaryNode:
		return p.operand(d.Left) + " " + d.Op.String() + " " + p.operand(d.Right)
	case RelationalNode:
		return p.operand(d.Left) + " " + d.Op.String() + " " + p.operand(d.Right)
	case LogicalNode:
		return p.operand(d.Left) + " " + d.Op.String() + " " + p.operand(d.Right)
	case UnaryNode:
		if d.Expr.Type == Unary || d.Expr.Type == Increment {
			return d.Op.String() + "(" + p.expr(d.Expr) + ")"
		}
		return d.Op.String() + p.operand(d.Expr)
	case IncrementNode:
		if d.Prefix {
			return d.Op.String() + p.operand(d.Expr)
		}
		return p.operand(d.Expr) + d.Op.String()
	case AssignNode:
		return p.expr(d.Lhs) + " " + d.Op.String() + " " + p.expr(d.Rhs)
	case TernaryNode:
		return p.operand(d.Cond) + " ? " + p.operand(d.Then) + " : " + p.operand(d.Else)
	case CallNode:
		args := make([]string, len(d.Args))
		for i, a := range d.Args {
			args[i] = p.expr(a)
		}
		return d.Name + "(" + strings.Join(args, ", ") + ")"
	case IndexNode:
		return p.operand(d.Array) + "[" + p.expr(d.Index) + "]"
	case AddrOfNode:
		return "&" + p.operand(d.Expr)
	case DerefNode:
		return "*" + p.operand(d.Expr)
	case SizeofNode:
		if d.Type != nil {
			return "sizeof(" + d.Type.String() + strings.Repeat("*", d.Ptr) + ")"
		}
		return "sizeof(" + p.expr(d.Expr) + ")"
	case InitListNode:
		elems := make([]string, len(d.Elems))
		for i, e := range d.Elems {
			elems[i] = p.expr(e)
		}
		return "{" + strings.Join(elems, ", ") + "}"
	}
	return "<" + n.Type.String() + ">"
}

func (p *printer) operand(n *Node) string {
	switch n.Type {
	case Binary, Relational, Logical, Assign, Ternary:
		return "(" + p.expr(n) + ")"
	}
	return p.expr(n)
}

func quoteChar(v int64) string {
	switch v {
	case '\n': return `'\n'`
	case '\t': return `'\t'`
	case '\r': return `'\r'`
	case 0: return `'\0'`
	case '\'': return `'\''`
	case '\\': return `'\\'`
	}
	if v >= 32 && v < 127 {
		return "'" + string(rune(v)) + "'"
	}
	return fmt.Sprintf("'\\x%02x'", v&0xFF)
}
