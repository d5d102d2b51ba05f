package store

import "errors"

// 存储层错误
var (
	// ErrNotFound 引用的 id 不存在
	ErrNotFound = errors.New("template not found")
	// ErrCorruptData 数据文件存在但无法解析为存储文档
	ErrCorruptData = errors.New("template data is corrupt")
	// ErrWrite 写入失败,原文件保持不变
	ErrWrite = errors.New("failed to write template data")
	// ErrRead 读取失败
	ErrRead = errors.New("failed to read template data")
	// ErrDuplicate 文档中存在重复 id
	ErrDuplicate = errors.New("duplicate template id")
)
