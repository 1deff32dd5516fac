package theta

import "fmt"

// Family identifies the kind of sketch a serialized image holds.  The values
// match the family ids in the DataSketches binary format.
type Family int

const (
	FamilyAlpha       Family = 1
	FamilyQuickSelect Family = 2
	FamilyCompact     Family = 3
	FamilyUnion       Family = 4
)

func (f Family) String() string {
	switch f {
	case FamilyAlpha:
		return "Alpha"
	case FamilyQuickSelect:
		return "QuickSelect"
	case FamilyCompact:
		return "Compact"
	case FamilyUnion:
		return "Union"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// byte offsets of the preamble fields.  every field is little endian.
//
//	+--------+--------+--------+--------+--------+--------+----------------+
//	| byte 0 | byte 1 | byte 2 | byte 3 | byte 4 | byte 5 | bytes 6-7      |
//	| preLng | serVer | family | lgNom  | lgArr  | flags  | seed hash      |
//	+--------+--------+--------+--------+--------+--------+----------------+
//	| bytes 8-11 retained count         | bytes 12-15 p (float32)          |
//	+-----------------------------------+----------------------------------+
//	| bytes 16-23 theta                                                    |
//	+----------------------------------------------------------------------+
//	| bytes 24-31 union theta (union family only)                          |
//	+----------------------------------------------------------------------+
const (
	preLongsByte   = 0
	serVerByte     = 1
	familyByte     = 2
	lgNomLongsByte = 3
	lgArrLongsByte = 4
	flagsByte      = 5
	seedHashShort  = 6
	retainedInt    = 8
	pFloat         = 12
	thetaLong      = 16
	unionThetaLong = 24
)

const (
	flagBigEndian  = 1
	flagReadOnly   = 2
	flagEmpty      = 4
	flagCompact    = 8
	flagOrdered    = 16
	flagSingleItem = 32
)

const (
	serVer = 3

	// preamble sizes, in longs, of the serialized forms produced here.
	compactEmptyPreLongs = 1
	compactExactPreLongs = 2
	compactPreLongs      = 3
	updatePreLongs       = 3
	unionPreLongs        = 4

	// images below this size carry no information.
	minImageBytes = 16
)

func extractPreLongs(mem *Memory) int {
	return int(mem.Byte(preLongsByte) & 0x3f)
}

func extractLgResizeFactor(mem *Memory) int {
	return int(mem.Byte(preLongsByte) >> 6)
}

func extractSerVer(mem *Memory) int {
	return int(mem.Byte(serVerByte))
}

func extractFamily(mem *Memory) Family {
	return Family(mem.Byte(familyByte))
}

func extractLgNomLongs(mem *Memory) int {
	return int(mem.Byte(lgNomLongsByte))
}

func extractLgArrLongs(mem *Memory) int {
	return int(mem.Byte(lgArrLongsByte))
}

func extractFlags(mem *Memory) byte {
	return mem.Byte(flagsByte)
}

func extractSeedHash(mem *Memory) uint16 {
	return mem.Uint16(seedHashShort)
}

func extractRetained(mem *Memory) int {
	return int(int32(mem.Uint32(retainedInt)))
}

func extractP(mem *Memory) float32 {
	return mem.Float32(pFloat)
}

func extractThetaLong(mem *Memory) uint64 {
	return mem.Uint64(thetaLong)
}

func extractUnionThetaLong(mem *Memory) uint64 {
	return mem.Uint64(unionThetaLong)
}

func isEmptyImage(mem *Memory) bool {
	return extractFlags(mem)&flagEmpty != 0
}

// insertPreamble writes the fields shared by every hash-table form image.
func insertPreamble(mem *Memory, preLongs int, lgRF int, family Family, lgNomLongs, lgArrLongs int, flags byte, seedHash uint16) {
	mem.PutByte(preLongsByte, byte(lgRF<<6)|byte(preLongs&0x3f))
	mem.PutByte(serVerByte, serVer)
	mem.PutByte(familyByte, byte(family))
	mem.PutByte(lgNomLongsByte, byte(lgNomLongs))
	mem.PutByte(lgArrLongsByte, byte(lgArrLongs))
	mem.PutByte(flagsByte, flags)
	mem.PutUint16(seedHashShort, seedHash)
}

func insertRetained(mem *Memory, n int) {
	mem.PutUint32(retainedInt, uint32(n))
}

func insertLgArrLongs(mem *Memory, lgArrLongs int) {
	mem.PutByte(lgArrLongsByte, byte(lgArrLongs))
}

func insertP(mem *Memory, p float32) {
	mem.PutFloat32(pFloat, p)
}

func insertThetaLong(mem *Memory, theta uint64) {
	mem.PutUint64(thetaLong, theta)
}

func insertUnionThetaLong(mem *Memory, theta uint64) {
	mem.PutUint64(unionThetaLong, theta)
}

func setEmptyFlag(mem *Memory, empty bool) {
	flags := extractFlags(mem)
	if empty {
		flags |= flagEmpty
	} else {
		flags &^= flagEmpty
	}
	mem.PutByte(flagsByte, flags)
}
