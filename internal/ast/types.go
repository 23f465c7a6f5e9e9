package ast

// MapKind is one of the eBPF map types spec.md §3 allows a MapDecl to carry.
type MapKind string

const (
	MapHash           MapKind = "hash"
	MapLRUHash        MapKind = "lru_hash"
	MapArray          MapKind = "array"
	MapPercpuHash     MapKind = "percpu_hash"
	MapPercpuArray    MapKind = "percpu_array"
	MapRingbuf        MapKind = "ringbuf"
	MapPerfEventArray MapKind = "perf_event_array"
)

// Valid reports whether k is one of the recognized map kinds.
func (k MapKind) Valid() bool {
	switch k {
	case MapHash, MapLRUHash, MapArray, MapPercpuHash, MapPercpuArray, MapRingbuf, MapPerfEventArray:
		return true
	}
	return false
}

// Type is the closed sum of surface type expressions: primitives, fixed
// arrays, named references (struct/enum/alias, resolved by the symbol
// table), pointers, and map types.
type Type interface {
	isType()
	String() string
}

// PrimitiveKind enumerates the scalar primitive types of spec.md §3.
type PrimitiveKind string

const (
	U8   PrimitiveKind = "u8"
	U16  PrimitiveKind = "u16"
	U32  PrimitiveKind = "u32"
	U64  PrimitiveKind = "u64"
	I8   PrimitiveKind = "i8"
	I16  PrimitiveKind = "i16"
	I32  PrimitiveKind = "i32"
	I64  PrimitiveKind = "i64"
	Bool PrimitiveKind = "bool"
)

// Signed reports whether k is one of the signed integer kinds.
func (k PrimitiveKind) Signed() bool {
	switch k {
	case I8, I16, I32, I64:
		return true
	}
	return false
}

// BitWidth returns the storage width of k in bits, or 0 for Bool.
func (k PrimitiveKind) BitWidth() int {
	switch k {
	case U8, I8:
		return 8
	case U16, I16:
		return 16
	case U32, I32:
		return 32
	case U64, I64:
		return 64
	}
	return 0
}

// PrimitiveType is a scalar primitive type reference.
type PrimitiveType struct{ Kind PrimitiveKind }

func (*PrimitiveType) isType()            {}
func (t *PrimitiveType) String() string   { return string(t.Kind) }

// StrType is a fixed-capacity string, written `str(N)` on the surface.
type StrType struct{ N int }

func (*StrType) isType()          {}
func (t *StrType) String() string { return "str" }

// ArrayType is a fixed-size array `T[N]`.
type ArrayType struct {
	Elem Type
	N    int
}

func (*ArrayType) isType()          {}
func (t *ArrayType) String() string { return t.Elem.String() + "[]" }

// NamedType references a struct, enum, or type alias by name; resolved to
// its definition by the symbol table.
type NamedType struct{ Name string }

func (*NamedType) isType()          {}
func (t *NamedType) String() string { return t.Name }

// PointerType is `*T`.
type PointerType struct{ Elem Type }

func (*PointerType) isType()          {}
func (t *PointerType) String() string { return "*" + t.Elem.String() }

// MapType is `Map(K, V, kind, size)`, also produced by the `MapKind<K,V>(N)`
// surface syntax. A GlobalVarDecl carrying a MapType is registered as a map
// by symtab and lowered as one by ir (spec.md §3).
type MapType struct {
	Key        Type
	Value      Type
	Kind       MapKind
	MaxEntries int
}

func (*MapType) isType()          {}
func (t *MapType) String() string { return "Map(" + string(t.Kind) + ")" }
