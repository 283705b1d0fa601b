package domain

import "errors"

var (
	// ErrPartNotFound 配件不存在
	ErrPartNotFound = errors.New("part not found")
	// ErrInsufficientStock 库存不足，整批扣减拒绝
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity 变动数量必须为正
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrDuplicatePartNumber 配件编号已存在
	ErrDuplicatePartNumber = errors.New("part number already exists")
	// ErrPartInUse 存在用料记录的配件不允许删除
	ErrPartInUse = errors.New("part is referenced by usage history")
)
