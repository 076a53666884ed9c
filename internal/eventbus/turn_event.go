package eventbus

import (
	"time"

	"github.com/llmcouncil/backend/internal/domain"
)

type TurnEventType string

const (
	TurnEventCompleted TurnEventType = "TurnCompleted"
	TurnEventFailed    TurnEventType = "TurnFailed"
)

// TurnEvent 一轮议会结束后发布，Result 在失败时为部分结果
type TurnEvent struct {
	Type           TurnEventType
	ConversationID string
	MessageIndex   int
	Query          domain.CouncilQuery
	Result         *domain.TurnResult
	FinishedAt     time.Time
}

func (e TurnEvent) EventType() TurnEventType {
	return e.Type
}

type TurnEventHandler = Handler[TurnEvent]
type TurnEventBus = Bus[TurnEventType, TurnEvent]

func NewTurnEventBus() *TurnEventBus {
	return NewBus[TurnEventType, TurnEvent]()
}
