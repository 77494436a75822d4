/**
 * 系统仓库层:用户与操作日志数据访问
 * @author: Sun977
 * @date: 2026.03.24
 * @description: 运营用户(只读)与操作日志数据访问层
 * @func: 用户查询、操作日志写入与分页查询
 */
package system

import (
	"gorm.io/gorm"

	systemModel "vendmaster/internal/model/system"
	"vendmaster/internal/pkg/logger"
)

// UserRepository 用户仓库接口定义 [账号由运营平台维护，这里只读]
type UserRepository interface {
	GetByID(id uint64) (*systemModel.User, error)
	GetList(page, pageSize int, merchantID *uint64) ([]*systemModel.User, int64, error)
}

// OperationLogRepository 操作日志仓库接口定义
type OperationLogRepository interface {
	Create(log *systemModel.OperationLog) error
	GetList(page, pageSize int, action string) ([]*systemModel.OperationLog, int64, error)
}

// userRepository 用户仓库实现
type userRepository struct {
	db *gorm.DB // 数据库连接
}

// NewUserRepository 创建用户仓库实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

// GetByID 根据主键获取用户
func (r *userRepository) GetByID(id uint64) (*systemModel.User, error) {
	var user systemModel.User

	result := r.db.First(&user, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // 返回nil表示未找到，不是错误
		}
		logger.LogError(result.Error, "", 0, "", "repo.system.GetByID", "", map[string]interface{}{
			"operation": "get_user_by_id",
			"option":    "userRepository.GetByID",
			"func_name": "repo.system.GetByID",
			"user_id":   id,
		})
		return nil, result.Error
	}

	return &user, nil
}

// GetList 分页查询用户列表
func (r *userRepository) GetList(page, pageSize int, merchantID *uint64) ([]*systemModel.User, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := r.db.Model(&systemModel.User{})
	if merchantID != nil {
		query = query.Where("merchant_id = ?", *merchantID)
	}

	var total int64
	if result := query.Count(&total); result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.system.GetList", "", map[string]interface{}{
			"operation": "count_users",
			"option":    "userRepository.GetList",
			"func_name": "repo.system.GetList",
		})
		return nil, 0, result.Error
	}

	var users []*systemModel.User
	result := query.Order("id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&users)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.system.GetList", "", map[string]interface{}{
			"operation": "list_users",
			"option":    "userRepository.GetList",
			"func_name": "repo.system.GetList",
		})
		return nil, 0, result.Error
	}

	return users, total, nil
}

// operationLogRepository 操作日志仓库实现
type operationLogRepository struct {
	db *gorm.DB // 数据库连接
}

// NewOperationLogRepository 创建操作日志仓库实例
func NewOperationLogRepository(db *gorm.DB) OperationLogRepository {
	return &operationLogRepository{
		db: db,
	}
}

// Create 写入操作日志
func (r *operationLogRepository) Create(log *systemModel.OperationLog) error {
	result := r.db.Create(log)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.system.OperationLog.Create", "", map[string]interface{}{
			"operation": "create_operation_log",
			"option":    "operationLogRepository.Create",
			"func_name": "repo.system.OperationLog.Create",
			"action":    log.Action,
		})
		return result.Error
	}

	return nil
}

// GetList 分页查询操作日志
func (r *operationLogRepository) GetList(page, pageSize int, action string) ([]*systemModel.OperationLog, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := r.db.Model(&systemModel.OperationLog{})
	if action != "" {
		query = query.Where("action = ?", action)
	}

	var total int64
	if result := query.Count(&total); result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.system.OperationLog.GetList", "", map[string]interface{}{
			"operation": "count_operation_logs",
			"option":    "operationLogRepository.GetList",
			"func_name": "repo.system.OperationLog.GetList",
		})
		return nil, 0, result.Error
	}

	var logs []*systemModel.OperationLog
	result := query.Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&logs)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.system.OperationLog.GetList", "", map[string]interface{}{
			"operation": "list_operation_logs",
			"option":    "operationLogRepository.GetList",
			"func_name": "repo.system.OperationLog.GetList",
		})
		return nil, 0, result.Error
	}

	return logs, total, nil
}
