/*
 * @author: sun977
 * @date: 2026.03.12
 * @description: 业务标识生成工具
 * @func:
 * 	1.生成指令ID
 * 	2.生成批次ID
 * 	3.生成设备API密钥
 */

package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCommandID 生成全局唯一指令ID，格式: cmd-<32位hex>
func NewCommandID() string {
	return "cmd-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewBatchID 生成批次ID，格式: batch-YYYYMMDD-<6位hex>
// 日期段方便运维按天检索，随机段避免同一天内冲突
func NewBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("batch-%s-%s", now.Format("20060102"), suffix)
}

// NewDeviceAPIKey 生成设备API密钥
func NewDeviceAPIKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
