package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs define the binary identifiers for each module section.
// Non-custom sections must appear in increasing canonical order.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// Import/export descriptor kind bytes.
const (
	descFunc   byte = 0
	descTable  byte = 1
	descMemory byte = 2
	descGlobal byte = 3
)

// Value type encodings.
const (
	valI32       byte = 0x7F
	valI64       byte = 0x7E
	valF32       byte = 0x7D
	valF64       byte = 0x7C
	valV128      byte = 0x7B
	valFuncRef   byte = 0x70
	valExternRef byte = 0x6F
)

// funcTypeTag prefixes every entry of the type section.
const funcTypeTag byte = 0x60

// Constant expression opcodes accepted in global initializers and offsets.
const (
	opI32Const  byte = 0x41
	opI64Const  byte = 0x42
	opF32Const  byte = 0x43
	opF64Const  byte = 0x44
	opGlobalGet byte = 0x23
	opRefNull   byte = 0xD0
	opRefFunc   byte = 0xD2
	opEnd       byte = 0x0B
)
