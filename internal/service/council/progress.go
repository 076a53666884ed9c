package council

import "sync/atomic"

// RunProgress 单轮运行的进度计数，各字段独立原子更新
type RunProgress struct {
	Stage1Completed  atomic.Int32
	Stage1Total      atomic.Int32
	Stage2Completed  atomic.Int32
	Stage2Total      atomic.Int32
	Stage3InProgress atomic.Bool
}

// ProgressSnapshot RunProgress 的只读快照
type ProgressSnapshot struct {
	Stage1Completed  int  `json:"stage1_completed"`
	Stage1Total      int  `json:"stage1_total"`
	Stage2Completed  int  `json:"stage2_completed"`
	Stage2Total      int  `json:"stage2_total"`
	Stage3InProgress bool `json:"stage3_in_progress"`
}

func (p *RunProgress) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Stage1Completed:  int(p.Stage1Completed.Load()),
		Stage1Total:      int(p.Stage1Total.Load()),
		Stage2Completed:  int(p.Stage2Completed.Load()),
		Stage2Total:      int(p.Stage2Total.Load()),
		Stage3InProgress: p.Stage3InProgress.Load(),
	}
}
