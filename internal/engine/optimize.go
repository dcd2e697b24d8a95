package engine

// optimize returns the instruction stream code generation works on. Level
// zero keeps the stream as emitted; level one drops unreachable
// instructions and branches to the immediately following label.
func optimize(insns []Insn, level int) []Insn {
	out := make([]Insn, 0, len(insns)+1)
	if level < 1 {
		return append(out, insns...)
	}
	dead := false
	for _, in := range insns {
		if in.Op == OpLabel {
			dead = false
		}
		if dead {
			continue
		}
		out = append(out, in)
		if in.Op.IsTerminator() {
			dead = true
		}
	}
	return removeBranchesToNext(out)
}

func removeBranchesToNext(insns []Insn) []Insn {
	out := insns[:0]
	for i, in := range insns {
		if in.Op == OpBranch && fallsInto(insns[i+1:], in.Labels[0]) {
			continue
		}
		out = append(out, in)
	}
	return out
}

// fallsInto reports whether rest starts with a run of labels containing l.
func fallsInto(rest []Insn, l Label) bool {
	for _, in := range rest {
		if in.Op != OpLabel {
			return false
		}
		if in.Labels[0] == l {
			return true
		}
	}
	return false
}
