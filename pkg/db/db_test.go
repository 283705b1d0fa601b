package db

import (
	"database/sql"
	"testing"
)

func TestGormConfigTranslatesDriverErrors(t *testing.T) {
	cfg := gormConfig(Config{LogEnabled: true, SlowQueryThreshold: 200})
	// 唯一键冲突分类依赖驱动错误翻译为 gorm.ErrDuplicatedKey
	if !cfg.TranslateError {
		t.Fatal("TranslateError must be enabled")
	}
	if cfg.Logger == nil {
		t.Fatal("gorm logger not set")
	}
}

func TestParseIsolation(t *testing.T) {
	cases := []struct {
		in   string
		want sql.IsolationLevel
	}{
		{"READ_UNCOMMITTED", sql.LevelReadUncommitted},
		{"READ_COMMITTED", sql.LevelReadCommitted},
		{"REPEATABLE_READ", sql.LevelRepeatableRead},
		{"SERIALIZABLE", sql.LevelSerializable},
		{"", sql.LevelDefault},
		{"bogus", sql.LevelDefault},
	}
	for _, tc := range cases {
		if got := parseIsolation(tc.in); got != tc.want {
			t.Errorf("parseIsolation(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
