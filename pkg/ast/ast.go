// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Ident NodeType = iota
	IntConst
	FloatConst
	CharConst
	StringConst
	Binary
	Relational
	Logical
	Unary
	Increment
	Assign
	Ternary
	Call
	Index
	AddrOf
	Deref
	Sizeof

	// Statements
	ExprStmt
	Block
	If
	While
	DoWhile
	For
	Switch
	Case
	Default
	Break
	Continue
	Return

	// Declarations
	Declaration
	Declarator
	Param
	InitList
	EnumDecl
	FuncDef
	TranslationUnit
)

var nodeTypeNames = [...]string{
	Ident: "Ident", IntConst: "IntConst", FloatConst: "FloatConst", CharConst: "CharConst",
	StringConst: "StringConst", Binary: "Binary", Relational: "Relational", Logical: "Logical",
	Unary: "Unary", Increment: "Increment", Assign: "Assign", Ternary: "Ternary", Call: "Call",
	Index: "Index", AddrOf: "AddrOf", Deref: "Deref", Sizeof: "Sizeof", ExprStmt: "ExprStmt",
	Block: "Block", If: "If", While: "While", DoWhile: "DoWhile", For: "For", Switch: "Switch",
	Case: "Case", Default: "Default", Break: "Break", Continue: "Continue", Return: "Return",
	Declaration: "Declaration", Declarator: "Declarator", Param: "Param", InitList: "InitList",
	EnumDecl: "EnumDecl", FuncDef: "FuncDef", TranslationUnit: "TranslationUnit",
}

func (t NodeType) String() string {
	if t >= 0 && int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "Node"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}
}

// TypeSpec is a declaration specifier. Enum types are stored as int with the
// tag kept for printing.
type TypeSpec struct {
	Kind types.Kind
	Enum string
}

// --- Node Data Structs ---
type IdentNode struct{ Name string }
type IntConstNode struct{ Value int64; Unsigned bool }
type FloatConstNode struct{ Value float64; Single bool }
type CharConstNode struct{ Value int64 }
type StringConstNode struct{ Value string }
type BinaryNode struct{ Op token.Type; Left, Right *Node }
type RelationalNode struct{ Op token.Type; Left, Right *Node }
type LogicalNode struct{ Op token.Type; Left, Right *Node }
type UnaryNode struct{ Op token.Type; Expr *Node }
type IncrementNode struct{ Op token.Type; Prefix bool; Expr *Node }
type AssignNode struct{ Op token.Type; Lhs, Rhs *Node }
type TernaryNode struct{ Cond, Then, Else *Node }
type CallNode struct{ Name string; Args []*Node }
type IndexNode struct{ Array, Index *Node }
type AddrOfNode struct{ Expr *Node }
type DerefNode struct{ Expr *Node }

// SizeofNode holds either an operand expression or a type name.
type SizeofNode struct {
	Expr *Node
	Type *TypeSpec
	Ptr  int
}

type ExprStmtNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }
type IfNode struct{ Cond, Then, Else *Node }
type WhileNode struct{ Cond, Body *Node }
type DoWhileNode struct{ Body, Cond *Node }
type ForNode struct{ Init, Cond, Update, Body *Node }

// CaseLabel records where a case or default marker sits in a switch body.
// Pos indexes SwitchNode.Body.
type CaseLabel struct {
	Pos       int
	Value     *Node
	IsDefault bool
	Tok       token.Token
}

type SwitchNode struct {
	Expr  *Node
	Body  []*Node
	Cases []CaseLabel
}

type CaseNode struct{ Value *Node }
type DefaultNode struct{}
type BreakNode struct{}
type ContinueNode struct{}
type ReturnNode struct{ Expr *Node }

type DeclarationNode struct {
	Spec  TypeSpec
	Enum  *Node
	Decls []*Node
}

// DeclaratorNode covers the plain, pointer, array and function declarator
// shapes. Size is nil for "x[]" sized by its initializer.
type DeclaratorNode struct {
	Name   string
	Ptr    int
	Array  bool
	Size   *Node
	Func   bool
	Params []*Node
	Init   *Node
}

// ParamNode is one parameter declaration. Array parameters are already
// adjusted to pointers.
type ParamNode struct {
	Spec TypeSpec
	Name string
	Ptr  int
}

type InitListNode struct{ Elems []*Node }

type EnumMember struct {
	Name  string
	Value *Node
	Tok   token.Token
}

type EnumDeclNode struct {
	Name    string
	Members []EnumMember
}

type FuncDefNode struct {
	Spec TypeSpec
	Decl *Node
	Body *Node
}

type TranslationUnitNode struct{ Decls []*Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewIntConst(tok token.Token, value int64, unsigned bool) *Node {
	return newNode(tok, IntConst, IntConstNode{Value: value, Unsigned: unsigned})
}
func NewFloatConst(tok token.Token, value float64, single bool) *Node {
	return newNode(tok, FloatConst, FloatConstNode{Value: value, Single: single})
}
func NewCharConst(tok token.Token, value int64) *Node {
	return newNode(tok, CharConst, CharConstNode{Value: value})
}
func NewStringConst(tok token.Token, value string) *Node {
	return newNode(tok, StringConst, StringConstNode{Value: value})
}
func NewBinary(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, Binary, BinaryNode{Op: op, Left: left, Right: right})
}
func NewRelational(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, Relational, RelationalNode{Op: op, Left: left, Right: right})
}
func NewLogical(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, Logical, LogicalNode{Op: op, Left: left, Right: right})
}
func NewUnary(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, Unary, UnaryNode{Op: op, Expr: expr})
}
func NewIncrement(tok token.Token, op token.Type, prefix bool, expr *Node) *Node {
	return newNode(tok, Increment, IncrementNode{Op: op, Prefix: prefix, Expr: expr})
}
func NewAssign(tok token.Token, op token.Type, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Op: op, Lhs: lhs, Rhs: rhs})
}
func NewTernary(tok token.Token, cond, then, els *Node) *Node {
	return newNode(tok, Ternary, TernaryNode{Cond: cond, Then: then, Else: els})
}
func NewCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, Call, CallNode{Name: name, Args: args})
}
func NewIndex(tok token.Token, array, index *Node) *Node {
	return newNode(tok, Index, IndexNode{Array: array, Index: index})
}
func NewAddrOf(tok token.Token, expr *Node) *Node {
	return newNode(tok, AddrOf, AddrOfNode{Expr: expr})
}
func NewDeref(tok token.Token, expr *Node) *Node {
	return newNode(tok, Deref, DerefNode{Expr: expr})
}
func NewSizeofExpr(tok token.Token, expr *Node) *Node {
	return newNode(tok, Sizeof, SizeofNode{Expr: expr})
}
func NewSizeofType(tok token.Token, spec TypeSpec, ptr int) *Node {
	return newNode(tok, Sizeof, SizeofNode{Type: &spec, Ptr: ptr})
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr})
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts})
}
func NewIf(tok token.Token, cond, then, els *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, Then: then, Else: els})
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body})
}
func NewDoWhile(tok token.Token, body, cond *Node) *Node {
	return newNode(tok, DoWhile, DoWhileNode{Body: body, Cond: cond})
}
func NewFor(tok token.Token, init, cond, update, body *Node) *Node {
	return newNode(tok, For, ForNode{Init: init, Cond: cond, Update: update, Body: body})
}
func NewSwitch(tok token.Token, expr *Node, body []*Node, cases []CaseLabel) *Node {
	return newNode(tok, Switch, SwitchNode{Expr: expr, Body: body, Cases: cases})
}
func NewCase(tok token.Token, value *Node) *Node {
	return newNode(tok, Case, CaseNode{Value: value})
}
func NewDefault(tok token.Token) *Node {
	return newNode(tok, Default, DefaultNode{})
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, BreakNode{})
}
func NewContinue(tok token.Token) *Node {
	return newNode(tok, Continue, ContinueNode{})
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr})
}
func NewDeclaration(tok token.Token, spec TypeSpec, enum *Node, decls []*Node) *Node {
	return newNode(tok, Declaration, DeclarationNode{Spec: spec, Enum: enum, Decls: decls})
}
func NewDeclarator(tok token.Token, d DeclaratorNode) *Node {
	return newNode(tok, Declarator, d)
}
func NewParam(tok token.Token, spec TypeSpec, name string, ptr int) *Node {
	return newNode(tok, Param, ParamNode{Spec: spec, Name: name, Ptr: ptr})
}
func NewInitList(tok token.Token, elems []*Node) *Node {
	return newNode(tok, InitList, InitListNode{Elems: elems})
}
func NewEnumDecl(tok token.Token, name string, members []EnumMember) *Node {
	return newNode(tok, EnumDecl, EnumDeclNode{Name: name, Members: members})
}
func NewFuncDef(tok token.Token, spec TypeSpec, decl, body *Node) *Node {
	return newNode(tok, FuncDef, FuncDefNode{Spec: spec, Decl: decl, Body: body})
}
func NewTranslationUnit(tok token.Token, decls []*Node) *Node {
	return newNode(tok, TranslationUnit, TranslationUnitNode{Decls: decls})
}

// --- Context-free capabilities ---

// GetID returns the identifier an expression or declarator names, looking
// through subscripts, dereferences, address-of and increments.
func GetID(n *Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch d := n.Data.(type) {
	case IdentNode: return d.Name, true
	case CallNode: return d.Name, true
	case DeclaratorNode: return d.Name, true
	case ParamNode: return d.Name, d.Name != ""
	case IndexNode: return GetID(d.Array)
	case DerefNode: return GetID(d.Expr)
	case AddrOfNode: return GetID(d.Expr)
	case IncrementNode: return GetID(d.Expr)
	case AssignNode: return GetID(d.Lhs)
	case FuncDefNode: return GetID(d.Decl)
	}
	return "", false
}

func IsFunction(n *Node) bool {
	if n == nil {
		return false
	}
	switch d := n.Data.(type) {
	case DeclaratorNode:
		return d.Func
	case FuncDefNode, CallNode:
		return true
	}
	return false
}

// GetParams returns the parameter list of a function declarator or
// definition, or the argument list of a call.
func GetParams(n *Node) ([]*Node, bool) {
	if n == nil {
		return nil, false
	}
	switch d := n.Data.(type) {
	case DeclaratorNode:
		return d.Params, d.Func
	case FuncDefNode:
		return GetParams(d.Decl)
	case CallNode:
		return d.Args, true
	}
	return nil, false
}

// IsLValue reports whether n designates a storage location.
func IsLValue(n *Node) bool {
	if n == nil {
		return false
	}
	switch n.Type {
	case Ident, Index, Deref:
		return true
	}
	return false
}

// IsConstant reports whether n is a literal that needs no storage lookup.
func IsConstant(n *Node) bool {
	if n == nil {
		return false
	}
	switch n.Type {
	case IntConst, FloatConst, CharConst:
		return true
	case Unary:
		return IsConstant(n.Data.(UnaryNode).Expr)
	}
	return false
}

// DeclPointerDepth returns the pointer depth a declarator or parameter
// declares.
func DeclPointerDepth(n *Node) (int, bool) {
	if n == nil {
		return 0, false
	}
	switch d := n.Data.(type) {
	case DeclaratorNode:
		return d.Ptr, true
	case ParamNode:
		return d.Ptr, true
	}
	return 0, false
}

// ArraySize returns the size expression of an array declarator. A nil
// expression with ok set means the size comes from the initializer.
func ArraySize(n *Node) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	if d, ok := n.Data.(DeclaratorNode); ok && d.Array {
		return d.Size, true
	}
	return nil, false
}
