package eventstream

import "github.com/llmcouncil/backend/internal/domain"

// Type 事件类型
type Type string

const (
	TypeStage1Start    Type = "stage1_start"
	TypeStage1Progress Type = "stage1_progress"
	TypeStage1Complete Type = "stage1_complete"
	TypeStage2Start    Type = "stage2_start"
	TypeStage2Progress Type = "stage2_progress"
	TypeStage2Complete Type = "stage2_complete"
	TypeStage3Start    Type = "stage3_start"
	TypeStage3Complete Type = "stage3_complete"
	TypeCosts          Type = "costs"
	TypeTitleComplete  Type = "title_complete"
	TypePing           Type = "ping"
	TypeError          Type = "error"
	TypeComplete       Type = "complete"
)

// Event 发给客户端的单个进度事件
type Event struct {
	Type     Type   `json:"type"`
	Data     any    `json:"data,omitempty"`
	Metadata any    `json:"metadata,omitempty"`
	Message  string `json:"message,omitempty"`

	// Result 只在 complete / error 事件上携带，供服务端持久化，不下发给客户端
	Result *domain.TurnResult `json:"-"`
}

// Terminal error 与 complete 结束事件流
func (e Event) Terminal() bool {
	return e.Type == TypeError || e.Type == TypeComplete
}

// Advances ping 只是保活信号，不推进进度
func (e Event) Advances() bool {
	return e.Type != TypePing
}

// Progress stage1_progress / stage2_progress 的载荷
type Progress struct {
	Model     string `json:"model"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusParseFailed = "parse_failed"
)

// StageStart stageN_start 的载荷
type StageStart struct {
	Models []string `json:"models"`
}

type titleData struct {
	Title string `json:"title"`
}

func Stage1Start(models []string) Event {
	return Event{Type: TypeStage1Start, Data: StageStart{Models: models}}
}

func Stage1Progress(p Progress) Event {
	return Event{Type: TypeStage1Progress, Data: p}
}

func Stage1Complete(responses []domain.MemberResponse) Event {
	return Event{Type: TypeStage1Complete, Data: responses}
}

func Stage2Start(models []string) Event {
	return Event{Type: TypeStage2Start, Data: StageStart{Models: models}}
}

func Stage2Progress(p Progress) Event {
	return Event{Type: TypeStage2Progress, Data: p}
}

func Stage2Complete(rankings []domain.RankingResult, metadata domain.TurnMetadata) Event {
	return Event{Type: TypeStage2Complete, Data: rankings, Metadata: metadata}
}

func Stage3Start(chairman string) Event {
	return Event{Type: TypeStage3Start, Data: StageStart{Models: []string{chairman}}}
}

func Stage3Complete(result domain.ChairmanResult) Event {
	return Event{Type: TypeStage3Complete, Data: result}
}

func Costs(costs domain.CostBreakdown) Event {
	return Event{Type: TypeCosts, Data: costs}
}

func TitleComplete(title string) Event {
	return Event{Type: TypeTitleComplete, Data: titleData{Title: title}}
}

func Ping() Event {
	return Event{Type: TypePing}
}

// Error 终止事件，partial 为已完成阶段的结果（可能为 nil）
func Error(message string, partial *domain.TurnResult) Event {
	return Event{Type: TypeError, Message: message, Result: partial}
}

// Complete 成功终止事件
func Complete(result *domain.TurnResult) Event {
	return Event{Type: TypeComplete, Result: result}
}
