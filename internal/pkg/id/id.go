package id

import (
	"github.com/google/uuid"
)

// New 生成新的UUID（string格式）
func New() string {
	return uuid.New().String()
}

// 上游问答记录拆分后的消息 ID 后缀
const (
	QuerySuffix  = "-q"
	AnswerSuffix = "-a"
)

// FromRecord 由上游记录 ID 派生消息 ID，同一记录的问与答分别加后缀
func FromRecord(recordID, suffix string) string {
	return recordID + suffix
}
