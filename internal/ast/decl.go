package ast

// Decl is the closed sum of top-level declaration nodes.
type Decl interface {
	isDecl()
	Position() Position
}

type DeclBase struct{ Pos Position }

func (d DeclBase) Position() Position { return d.Pos }

// MapDecl declares a shared eBPF map. Every map is globally visible to
// every kernel-side function and to user-space (spec.md §3): no map may be
// locally scoped, so the symbol table promotes every MapDecl to root scope
// regardless of the syntactic position it was declared at.
type MapDecl struct {
	DeclBase
	Name       string
	KeyType    Type // nil for Ringbuf/PerfEventArray, which have no key
	ValueType  Type
	Kind       MapKind
	MaxEntries int
	KeySize    int // 0 means "derive from KeyType"
	ValueSize  int // 0 means "derive from ValueType"
	Flags      uint32
	Pinned     bool
}

func (*MapDecl) isDecl() {}

// GlobalVarDecl declares a root-scope variable. When Type is a *MapType the
// node is not rewritten: symtab registers it as a SymMap and ir lowers it as
// a map instead of an ordinary global (spec.md §3).
type GlobalVarDecl struct {
	DeclBase
	Name   string
	Type   Type // nil when inferred from Init
	Init   Expr // nil when absent
	Pinned bool
}

func (*GlobalVarDecl) isDecl() {}

// ConfigField is one field of a ConfigDecl.
type ConfigField struct {
	Name    string
	Type    Type
	Default Expr // nil when absent
}

// ConfigDecl declares a user-space-writable configuration block backed by a
// dedicated eBPF map (`<name>_config_map_fd` per spec.md §4.7).
type ConfigDecl struct {
	DeclBase
	Name   string
	Fields []ConfigField
}

func (*ConfigDecl) isDecl() {}

// StructField is one field of a StructDecl.
type StructField struct {
	Name string
	Type Type
}

// StructDecl declares a named struct type.
type StructDecl struct {
	DeclBase
	Name   string
	Fields []StructField
}

func (*StructDecl) isDecl() {}

// TypeAliasDecl declares `type Name = Aliased`.
type TypeAliasDecl struct {
	DeclBase
	Name    string
	Aliased Type
}

func (*TypeAliasDecl) isDecl() {}

// EnumValue is one member of an EnumDecl.
type EnumValue struct {
	Name  string
	Value *int64 // nil means "auto: previous + 1, or 0 for the first member"
}

// EnumDecl declares a named enum type.
type EnumDecl struct {
	DeclBase
	Name   string
	Values []EnumValue
}

func (*EnumDecl) isDecl() {}

// Attribute is the closed set of function attributes recognized by
// spec.md §6.
type Attribute int

const (
	// AttrNone marks an ordinary (non-attributed) function, including main.
	AttrNone Attribute = iota
	AttrXDP
	AttrTC
	AttrKprobe
	AttrKfunc
	AttrHelper
	AttrPrivate
)

// String renders the attribute the way it appears in a kernel codegen
// section name or a diagnostic message.
func (a Attribute) String() string {
	switch a {
	case AttrXDP:
		return "xdp"
	case AttrTC:
		return "tc"
	case AttrKprobe:
		return "kprobe"
	case AttrKfunc:
		return "kfunc"
	case AttrHelper:
		return "helper"
	case AttrPrivate:
		return "private"
	default:
		return "none"
	}
}

// IsEBPFSide reports whether functions with this attribute execute in the
// eBPF context (as opposed to user-space or being visibility modifiers
// only callable cross-eBPF).
func (a Attribute) IsEBPFSide() bool {
	switch a {
	case AttrXDP, AttrTC, AttrKprobe:
		return true
	}
	return false
}

// Param is one function parameter.
type Param struct {
	Name string
	Type Type
}

// FunctionDecl declares a function, attributed or not. main is represented
// as a FunctionDecl named "main" with Attribute == AttrNone.
type FunctionDecl struct {
	DeclBase
	Name       string
	Attribute  Attribute
	TCDir      string // "ingress" | "egress", set iff Attribute == AttrTC
	KprobeSym  string // set iff Attribute == AttrKprobe
	Params     []Param
	ReturnType Type
	Body       []Stmt
}

func (*FunctionDecl) isDecl() {}

// IncludeDecl is `include "x.kh"`. The declarations it injects into root
// scope are produced by an external collaborator (spec.md §1, §4.2) and are
// not represented in the AST itself — only the directive is.
type IncludeDecl struct {
	DeclBase
	Header string
}

func (*IncludeDecl) isDecl() {}

// File is the top-level parse result for one source unit.
type File struct {
	Path     string
	Includes []*IncludeDecl
	Decls    []Decl
}
