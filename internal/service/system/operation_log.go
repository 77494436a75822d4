/**
 * 服务层:操作日志服务
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 操作审计日志异步写入与查询
 * @func: 业务链路调用Record异步落库，写入失败不影响主流程
 */
package system

import (
	"github.com/sirupsen/logrus"

	"vendmaster/internal/model/basemodel"
	systemModel "vendmaster/internal/model/system"
	"vendmaster/internal/pkg/logger"
	systemRepo "vendmaster/internal/repo/mysql/system"
)

// OperationLogService 操作日志服务接口定义
type OperationLogService interface {
	Record(userID uint64, username, action, targetType, targetID, clientIP string, detail map[string]interface{})
	GetList(page, pageSize int, action string) ([]*systemModel.OperationLog, int64, error)
}

// operationLogService 操作日志服务实现
type operationLogService struct {
	logRepo systemRepo.OperationLogRepository
}

// NewOperationLogService 创建操作日志服务实例
func NewOperationLogService(logRepo systemRepo.OperationLogRepository) OperationLogService {
	return &operationLogService{
		logRepo: logRepo,
	}
}

// Record 异步写入一条操作日志
// 审计失败只记错误日志，绝不阻塞或打断业务链路
func (s *operationLogService) Record(userID uint64, username, action, targetType, targetID, clientIP string, detail map[string]interface{}) {
	entry := &systemModel.OperationLog{
		UserID:     userID,
		Username:   username,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		ClientIP:   clientIP,
		Detail:     basemodel.JSONMap(detail),
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.LogSystemEvent("operation_log", "panic", "操作日志写入goroutine异常", logrus.ErrorLevel, map[string]interface{}{
					"panic":  r,
					"action": action,
				})
			}
		}()

		if err := s.logRepo.Create(entry); err != nil {
			logger.LogError(err, "", uint(userID), clientIP, "service.system.OperationLog.Record", "", map[string]interface{}{
				"operation": "record_operation_log",
				"option":    "operationLogService.Record",
				"func_name": "service.system.OperationLog.Record",
				"action":    action,
				"target_id": targetID,
			})
		}
	}()
}

// GetList 分页查询操作日志
func (s *operationLogService) GetList(page, pageSize int, action string) ([]*systemModel.OperationLog, int64, error) {
	return s.logRepo.GetList(page, pageSize, action)
}
