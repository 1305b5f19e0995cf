package stats

import "github.com/GenSpectrum/evobench-sub000/internal/logtree"

// ExtractValue reads f's measured quantity out of a parsed timing record,
// completing the "extract value from a timing record" half of the §9
// per-field capability set.
func (f Field) ExtractValue(tm *logtree.TimingMessage) uint64 {
	switch f {
	case FieldRealTime:
		return tm.RealTimeNanos
	case FieldCPUTime:
		return tm.CPUTimeNanos
	case FieldSysTime:
		return tm.SysTimeNanos
	case FieldContextSwitches:
		return tm.ContextSwitches
	default:
		return 0
	}
}
