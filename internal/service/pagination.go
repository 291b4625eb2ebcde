package service

import "chatrelay/internal/model"

// RoundSize 每轮固定一条用户消息加一条助手消息
// 如果将来一轮可以包含多条助手消息，分页的轮次计算需要重新定义
const RoundSize = 2

// DefaultRounds 请求未指定轮数时的默认值
const DefaultRounds = 10

// Paginate 从最近一轮向前按轮取窗口
// cursor 为已经从末尾消费的轮数；返回的下一游标为 nil 表示没有更早的历史
func Paginate(msgs []*model.Message, rounds, cursor int) ([]*model.Message, *int) {
	totalRounds := (len(msgs) + RoundSize - 1) / RoundSize
	if totalRounds == 0 {
		return []*model.Message{}, nil
	}

	safeRounds := min(max(rounds, 1), totalRounds)
	usedCursor := max(cursor, 0)
	endRound := max(totalRounds-usedCursor, 0)
	startRound := max(endRound-safeRounds, 0)

	start := min(startRound*RoundSize, len(msgs))
	end := min(endRound*RoundSize, len(msgs))
	window := make([]*model.Message, end-start)
	copy(window, msgs[start:end])

	if startRound > 0 {
		next := usedCursor + safeRounds
		return window, &next
	}
	return window, nil
}
