// Package errcode 定义后台任务通知里携带的数字错误码。
// 0 表示成功，4xxx 为可预期的业务结果，5xxx 为系统错误。
package errcode

// Code 随 export.finished 事件下发给前端。
type Code int

const (
	OK              Code = 0
	NothingToExport Code = 4004
	SystemError     Code = 5000
)

// Message 返回错误码的默认说明。
func (c Code) Message() string {
	switch c {
	case OK:
		return ""
	case NothingToExport:
		return "no candidates matched the export"
	default:
		return "export failed"
	}
}
