package layout

// TypeLayout is the ABI layout of a type for a specific Target.
type TypeLayout struct {
	Size  int
	Align int

	// Struct-only:
	FieldOffsets []int
}

// Scalar returns the natural layout of a primitive of the given byte width.
func Scalar(size int) TypeLayout {
	if size <= 0 {
		return TypeLayout{Size: 0, Align: 1}
	}
	return TypeLayout{Size: size, Align: size}
}

// Struct lays fields out in declaration order. Packed structs place every
// field directly after the previous one and have alignment 1; otherwise each
// field is rounded up to its own alignment and the total size is rounded up
// to the largest field alignment.
func Struct(fields []TypeLayout, packed bool) TypeLayout {
	offsets := make([]int, len(fields))
	if len(fields) == 0 {
		return TypeLayout{Size: 0, Align: 1, FieldOffsets: offsets}
	}

	if packed {
		size := 0
		for i, fl := range fields {
			offsets[i] = size
			size += fl.Size
		}
		return TypeLayout{
			Size:         size,
			Align:        1,
			FieldOffsets: offsets,
		}
	}

	size := 0
	align := 1
	for i, fl := range fields {
		fAlign := fl.Align
		if fAlign <= 0 {
			fAlign = 1
		}
		size = roundUp(size, fAlign)
		offsets[i] = size
		size += fl.Size
		align = maxInt(align, fAlign)
	}
	size = roundUp(size, align)
	return TypeLayout{
		Size:         size,
		Align:        align,
		FieldOffsets: offsets,
	}
}

// Union overlays all fields at offset zero.
func Union(fields []TypeLayout) TypeLayout {
	offsets := make([]int, len(fields))
	size := 0
	align := 1
	for _, fl := range fields {
		size = maxInt(size, fl.Size)
		align = maxInt(align, maxInt(1, fl.Align))
	}
	return TypeLayout{
		Size:         roundUp(size, align),
		Align:        align,
		FieldOffsets: offsets,
	}
}
