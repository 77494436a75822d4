/**
 * 指令仓库层:指令数据访问
 * @author: Sun977
 * @date: 2026.03.22
 * @description: 指令数据访问层，专注于数据操作，不包含业务逻辑
 * @func: 指令CRUD、守卫式状态迁移、批次聚合查询
 */
package command

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"vendmaster/internal/model/basemodel"
	commandModel "vendmaster/internal/model/command"
	"vendmaster/internal/pkg/logger"
)

// CommandWithDevice 指令与设备编号的联查行
type CommandWithDevice struct {
	commandModel.Command
	DeviceNo string `json:"device_no" gorm:"column:device_no"`
}

// CommandRepository 指令仓库接口定义 [定义接口层供上层调用，然后底下实现这些接口]
type CommandRepository interface {
	// 指令基础数据操作
	Create(cmd *commandModel.Command) error
	GetByCommandID(commandID string) (*commandModel.Command, error)
	CreateResultRecord(record *commandModel.CommandResultRecord) error

	// 守卫式状态迁移 [UPDATE ... WHERE status=旧状态，返回是否真正生效]
	MarkSent(commandID string, channel commandModel.CommandChannel) (bool, error)
	MarkSentBatch(commandIDs []string) error
	RecordResult(commandID string, deviceID uint64, status commandModel.CommandStatus, payload map[string]interface{}, resultAt time.Time) (bool, error)
	ResetForRetry(commandID string) (bool, error)

	// 投递与兜底扫描
	ListDeliverable(deviceID uint64) ([]*commandModel.Command, error)
	ListPendingForScan(cutoff time.Time, limit int) ([]*commandModel.Command, error)
	ExpireTimedOut(now time.Time) (int64, error)

	// 批次查询
	ListBatchSummaries(page, pageSize int, merchantID *uint64) ([]*commandModel.BatchSummary, int64, error)
	ListByBatch(batchID string, merchantID *uint64) ([]*CommandWithDevice, error)
	ListRetryable(batchID string, commandIDs []string, statuses []commandModel.CommandStatus, merchantID *uint64) ([]*commandModel.Command, error)

	// 统计
	CountByStatusSince(since time.Time) (map[string]int64, error)
}

// commandRepository 指令仓库实现
type commandRepository struct {
	db *gorm.DB // 数据库连接
}

// NewCommandRepository 创建指令仓库实例
func NewCommandRepository(db *gorm.DB) CommandRepository {
	return &commandRepository{
		db: db,
	}
}

// Create 创建指令（纯数据访问）
// command_id唯一索引兜底保证全局唯一
func (r *commandRepository) Create(cmd *commandModel.Command) error {
	result := r.db.Create(cmd)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.Create", "", map[string]interface{}{
			"operation":  "create_command",
			"option":     "commandRepository.Create",
			"func_name":  "repo.command.Create",
			"command_id": cmd.CommandID,
			"device_id":  cmd.DeviceID,
		})
		return result.Error
	}

	return nil
}

// GetByCommandID 根据指令ID获取指令
func (r *commandRepository) GetByCommandID(commandID string) (*commandModel.Command, error) {
	var cmd commandModel.Command

	result := r.db.Where("command_id = ?", commandID).First(&cmd)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // 返回nil表示未找到，不是错误
		}
		logger.LogError(result.Error, "", 0, "", "repo.command.GetByCommandID", "", map[string]interface{}{
			"operation":  "get_command",
			"option":     "commandRepository.GetByCommandID",
			"func_name":  "repo.command.GetByCommandID",
			"command_id": commandID,
		})
		return nil, result.Error
	}

	return &cmd, nil
}

// CreateResultRecord 写入指令结果审计记录
// 审计表只追加，调用方保证任何上报(包括未知command_id)都落一条
func (r *commandRepository) CreateResultRecord(record *commandModel.CommandResultRecord) error {
	result := r.db.Create(record)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.CreateResultRecord", "", map[string]interface{}{
			"operation":  "create_result_record",
			"option":     "commandRepository.CreateResultRecord",
			"func_name":  "repo.command.CreateResultRecord",
			"command_id": record.CommandID,
			"device_id":  record.DeviceID,
		})
		return result.Error
	}

	return nil
}

// MarkSent 将pending指令置为sent
// 守卫条件status=pending，并发投递或轮询翻转时只有一方生效
func (r *commandRepository) MarkSent(commandID string, channel commandModel.CommandChannel) (bool, error) {
	now := time.Now()
	result := r.db.Model(&commandModel.Command{}).
		Where("command_id = ? AND status = ?", commandID, commandModel.StatusPending).
		Updates(map[string]interface{}{
			"status":  commandModel.StatusSent,
			"channel": channel,
			"sent_at": now,
		})
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.MarkSent", "", map[string]interface{}{
			"operation":  "mark_sent",
			"option":     "commandRepository.MarkSent",
			"func_name":  "repo.command.MarkSent",
			"command_id": commandID,
		})
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// MarkSentBatch 批量将pending指令置为sent [设备轮询的读取副作用]
func (r *commandRepository) MarkSentBatch(commandIDs []string) error {
	if len(commandIDs) == 0 {
		return nil
	}

	now := time.Now()
	result := r.db.Model(&commandModel.Command{}).
		Where("command_id IN ? AND status = ?", commandIDs, commandModel.StatusPending).
		Updates(map[string]interface{}{
			"status":  commandModel.StatusSent,
			"sent_at": now,
		})
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.MarkSentBatch", "", map[string]interface{}{
			"operation": "mark_sent_batch",
			"option":    "commandRepository.MarkSentBatch",
			"func_name": "repo.command.MarkSentBatch",
			"count":     len(commandIDs),
		})
		return result.Error
	}

	return nil
}

// RecordResult 记录设备上报的最终结果
// 守卫条件status IN (pending, sent)：终态指令的重复上报不会生效，
// 返回false表示指令不存在或已处于终态
func (r *commandRepository) RecordResult(commandID string, deviceID uint64, status commandModel.CommandStatus, payload map[string]interface{}, resultAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":    status,
		"result_at": resultAt,
	}
	if len(payload) > 0 {
		updates["result_payload"] = basemodel.JSONMap(payload)
	}

	result := r.db.Model(&commandModel.Command{}).
		Where("command_id = ? AND device_id = ? AND status IN ?", commandID, deviceID,
			[]commandModel.CommandStatus{commandModel.StatusPending, commandModel.StatusSent}).
		Updates(updates)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.RecordResult", "", map[string]interface{}{
			"operation":  "record_result",
			"option":     "commandRepository.RecordResult",
			"func_name":  "repo.command.RecordResult",
			"command_id": commandID,
			"device_id":  deviceID,
		})
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ResetForRetry 将fail/timeout指令重置为pending并累加重试次数
// 守卫条件限定可重试状态，success指令不会被重置
func (r *commandRepository) ResetForRetry(commandID string) (bool, error) {
	result := r.db.Model(&commandModel.Command{}).
		Where("command_id = ? AND status IN ?", commandID,
			[]commandModel.CommandStatus{commandModel.StatusFail, commandModel.StatusTimeout}).
		Updates(map[string]interface{}{
			"status":         commandModel.StatusPending,
			"attempts":       gorm.Expr("attempts + 1"),
			"sent_at":        nil,
			"result_at":      nil,
			"result_payload": nil,
		})
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.ResetForRetry", "", map[string]interface{}{
			"operation":  "reset_for_retry",
			"option":     "commandRepository.ResetForRetry",
			"func_name":  "repo.command.ResetForRetry",
			"command_id": commandID,
		})
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ListDeliverable 获取设备可投递的指令列表 [pending和sent都返回，支持设备重启后重拉]
// 优先级高的先投递，同优先级按入库顺序
func (r *commandRepository) ListDeliverable(deviceID uint64) ([]*commandModel.Command, error) {
	var commands []*commandModel.Command

	result := r.db.Where("device_id = ? AND status IN ?", deviceID,
		[]commandModel.CommandStatus{commandModel.StatusPending, commandModel.StatusSent}).
		Order("priority DESC, id ASC").
		Find(&commands)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.ListDeliverable", "", map[string]interface{}{
			"operation": "list_deliverable",
			"option":    "commandRepository.ListDeliverable",
			"func_name": "repo.command.ListDeliverable",
			"device_id": deviceID,
		})
		return nil, result.Error
	}

	return commands, nil
}

// ListPendingForScan 兜底扫描pending指令 [发件箱模式，进程重启后未投递指令会被重新发现]
// cutoff避免和刚入库还在唤醒通道里的指令抢投递
func (r *commandRepository) ListPendingForScan(cutoff time.Time, limit int) ([]*commandModel.Command, error) {
	var commands []*commandModel.Command

	result := r.db.Where("status = ? AND updated_at <= ?", commandModel.StatusPending, cutoff).
		Order("priority DESC, id ASC").
		Limit(limit).
		Find(&commands)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.ListPendingForScan", "", map[string]interface{}{
			"operation": "list_pending_for_scan",
			"option":    "commandRepository.ListPendingForScan",
			"func_name": "repo.command.ListPendingForScan",
		})
		return nil, result.Error
	}

	return commands, nil
}

// ExpireTimedOut 将超过timeout_seconds仍未收到结果的指令置为timeout
// 截止时间在Go侧计算，避免数据库方言差异
func (r *commandRepository) ExpireTimedOut(now time.Time) (int64, error) {
	var candidates []*commandModel.Command

	result := r.db.Where("status IN ? AND timeout_seconds > 0",
		[]commandModel.CommandStatus{commandModel.StatusPending, commandModel.StatusSent}).
		Find(&candidates)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.ExpireTimedOut", "", map[string]interface{}{
			"operation": "expire_timed_out",
			"option":    "commandRepository.ExpireTimedOut",
			"func_name": "repo.command.ExpireTimedOut",
		})
		return 0, result.Error
	}

	// 截止时间以最近一次状态变更为基准：重试重置会刷新updated_at，
	// 用created_at会让重试过的指令在下一轮清扫立刻再次超时
	var expiredIDs []string
	for _, cmd := range candidates {
		deadline := cmd.UpdatedAt.Add(time.Duration(cmd.TimeoutSeconds) * time.Second)
		if now.After(deadline) {
			expiredIDs = append(expiredIDs, cmd.CommandID)
		}
	}

	if len(expiredIDs) == 0 {
		return 0, nil
	}

	update := r.db.Model(&commandModel.Command{}).
		Where("command_id IN ? AND status IN ?", expiredIDs,
			[]commandModel.CommandStatus{commandModel.StatusPending, commandModel.StatusSent}).
		Updates(map[string]interface{}{
			"status":    commandModel.StatusTimeout,
			"result_at": now,
		})
	if update.Error != nil {
		logger.LogError(update.Error, "", 0, "", "repo.command.ExpireTimedOut", "", map[string]interface{}{
			"operation": "expire_timed_out",
			"option":    "commandRepository.ExpireTimedOut",
			"func_name": "repo.command.ExpireTimedOut",
			"count":     len(expiredIDs),
		})
		return 0, update.Error
	}

	return update.RowsAffected, nil
}

// batchSummaryRow 批次聚合扫描行
// MIN/MAX聚合列丢失类型声明后部分驱动按文本返回时间，先收字符串再解析
type batchSummaryRow struct {
	BatchID     string         `gorm:"column:batch_id"`
	CommandType string         `gorm:"column:command_type"`
	Total       int64          `gorm:"column:total"`
	Pending     int64          `gorm:"column:pending"`
	Sent        int64          `gorm:"column:sent"`
	Success     int64          `gorm:"column:success"`
	Fail        int64          `gorm:"column:fail"`
	Timeout     int64          `gorm:"column:timeout"`
	CreatedAt   sql.NullString `gorm:"column:created_at"`
	FinishedAt  sql.NullString `gorm:"column:finished_at"`
}

// parseAggTime 解析聚合列里的时间文本
// 驱动返回time.Time时database/sql已转成RFC3339Nano文本，其余按方言常见格式尝试
func parseAggTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}

	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v.String); err == nil {
			return &t
		}
	}

	return nil
}

// ListBatchSummaries 分页查询批次聚合摘要
// merchantID非空时联devices表做商户数据范围过滤
func (r *commandRepository) ListBatchSummaries(page, pageSize int, merchantID *uint64) ([]*commandModel.BatchSummary, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	base := r.db.Table("commands").Where("commands.batch_id <> ''")
	if merchantID != nil {
		base = base.Joins("JOIN devices ON devices.id = commands.device_id").
			Where("devices.merchant_id = ?", *merchantID)
	}

	// 批次总数
	var total int64
	countResult := base.Session(&gorm.Session{}).Distinct("commands.batch_id").Count(&total)
	if countResult.Error != nil {
		logger.LogError(countResult.Error, "", 0, "", "repo.command.ListBatchSummaries", "", map[string]interface{}{
			"operation": "count_batches",
			"option":    "commandRepository.ListBatchSummaries",
			"func_name": "repo.command.ListBatchSummaries",
		})
		return nil, 0, countResult.Error
	}

	var rows []batchSummaryRow
	result := base.Session(&gorm.Session{}).
		Select(`commands.batch_id AS batch_id,
			MIN(commands.command_type) AS command_type,
			COUNT(*) AS total,
			SUM(CASE WHEN commands.status = 'pending' THEN 1 ELSE 0 END) AS pending,
			SUM(CASE WHEN commands.status = 'sent' THEN 1 ELSE 0 END) AS sent,
			SUM(CASE WHEN commands.status = 'success' THEN 1 ELSE 0 END) AS success,
			SUM(CASE WHEN commands.status = 'fail' THEN 1 ELSE 0 END) AS fail,
			SUM(CASE WHEN commands.status = 'timeout' THEN 1 ELSE 0 END) AS timeout,
			MIN(commands.created_at) AS created_at,
			MAX(commands.result_at) AS finished_at`).
		Group("commands.batch_id").
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(&rows)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.ListBatchSummaries", "", map[string]interface{}{
			"operation": "list_batch_summaries",
			"option":    "commandRepository.ListBatchSummaries",
			"func_name": "repo.command.ListBatchSummaries",
		})
		return nil, 0, result.Error
	}

	summaries := make([]*commandModel.BatchSummary, 0, len(rows))
	for _, row := range rows {
		var createdAt time.Time
		if t := parseAggTime(row.CreatedAt); t != nil {
			createdAt = *t
		}

		summaries = append(summaries, &commandModel.BatchSummary{
			BatchID:     row.BatchID,
			CommandType: row.CommandType,
			Total:       row.Total,
			Pending:     row.Pending,
			Sent:        row.Sent,
			Success:     row.Success,
			Fail:        row.Fail,
			Timeout:     row.Timeout,
			CreatedAt:   createdAt,
			FinishedAt:  parseAggTime(row.FinishedAt),
		})
	}

	return summaries, total, nil
}

// ListByBatch 查询批次内全部指令明细，联devices表带出设备编号
func (r *commandRepository) ListByBatch(batchID string, merchantID *uint64) ([]*CommandWithDevice, error) {
	var rows []*CommandWithDevice

	query := r.db.Table("commands").
		Select("commands.*, devices.device_no AS device_no").
		Joins("JOIN devices ON devices.id = commands.device_id").
		Where("commands.batch_id = ?", batchID)
	if merchantID != nil {
		query = query.Where("devices.merchant_id = ?", *merchantID)
	}

	result := query.Order("commands.id ASC").Scan(&rows)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.ListByBatch", "", map[string]interface{}{
			"operation": "list_by_batch",
			"option":    "commandRepository.ListByBatch",
			"func_name": "repo.command.ListByBatch",
			"batch_id":  batchID,
		})
		return nil, result.Error
	}

	return rows, nil
}

// ListRetryable 查询批次内可重试的指令
// commandIDs非空时按ID过滤，否则按statuses过滤
func (r *commandRepository) ListRetryable(batchID string, commandIDs []string, statuses []commandModel.CommandStatus, merchantID *uint64) ([]*commandModel.Command, error) {
	query := r.db.Table("commands").
		Select("commands.*").
		Joins("JOIN devices ON devices.id = commands.device_id").
		Where("commands.batch_id = ?", batchID)
	if merchantID != nil {
		query = query.Where("devices.merchant_id = ?", *merchantID)
	}
	if len(commandIDs) > 0 {
		query = query.Where("commands.command_id IN ?", commandIDs)
		// 指定ID时仍限定可重试状态，防止重置进行中的指令
		query = query.Where("commands.status IN ?",
			[]commandModel.CommandStatus{commandModel.StatusFail, commandModel.StatusTimeout})
	} else {
		query = query.Where("commands.status IN ?", statuses)
	}

	var commands []*commandModel.Command
	result := query.Order("commands.id ASC").Scan(&commands)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.ListRetryable", "", map[string]interface{}{
			"operation": "list_retryable",
			"option":    "commandRepository.ListRetryable",
			"func_name": "repo.command.ListRetryable",
			"batch_id":  batchID,
		})
		return nil, result.Error
	}

	return commands, nil
}

// CountByStatusSince 统计起始时间后各状态指令数量
func (r *commandRepository) CountByStatusSince(since time.Time) (map[string]int64, error) {
	type statusCount struct {
		Status string `gorm:"column:status"`
		Num    int64  `gorm:"column:num"`
	}

	var rows []statusCount
	result := r.db.Table("commands").
		Select("status, COUNT(*) AS num").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.command.CountByStatusSince", "", map[string]interface{}{
			"operation": "count_by_status",
			"option":    "commandRepository.CountByStatusSince",
			"func_name": "repo.command.CountByStatusSince",
		})
		return nil, result.Error
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Num
	}

	return counts, nil
}
