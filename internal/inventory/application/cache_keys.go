// Package application 库存服务的用例层：事务性扣减、库存调整、旁路缓存读取
package application

import "fmt"

// 缓存键命名空间。键由归一化后的查询参数确定性推导，
// 相同请求必须命中同一条目；列表/统计类键按前缀整体失效。
const (
	partDetailKeyFmt  = "part:detail:%d"
	partsListKeyFmt   = "parts:list:page:%d:limit:%d:search:%s:lowstock:%t"
	partsListPrefix   = "parts:list:"
	partsStatsKeyFmt  = "parts:stats:year:%d"
	partsStatsPrefix  = "parts:stats:"
	partHistoryKeyFmt = "part:history:%d:page:%d:limit:%d"
	partHistoryPrefix = "part:history:%d:"
)

func partDetailKey(partID uint) string {
	return fmt.Sprintf(partDetailKeyFmt, partID)
}

func partsListKey(page, limit int, search string, lowStockOnly bool) string {
	return fmt.Sprintf(partsListKeyFmt, page, limit, search, lowStockOnly)
}

func partsStatsKey(year int) string {
	return fmt.Sprintf(partsStatsKeyFmt, year)
}

func partHistoryKey(partID uint, page, limit int) string {
	return fmt.Sprintf(partHistoryKeyFmt, partID, page, limit)
}

func partHistoryKeyPrefix(partID uint) string {
	return fmt.Sprintf(partHistoryPrefix, partID)
}
