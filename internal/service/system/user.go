/**
 * 服务层:运营用户服务
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 运营用户只读查询(账号体系由运营平台维护)
 * @func: 用户列表、用户详情
 */
package system

import (
	"errors"

	systemModel "vendmaster/internal/model/system"
	systemRepo "vendmaster/internal/repo/mysql/system"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("用户不存在")

// UserService 运营用户服务接口定义
type UserService interface {
	GetList(page, pageSize int, merchantID *uint64) ([]*systemModel.User, int64, error)
	GetByID(merchantID *uint64, id uint64) (*systemModel.User, error)
}

// userService 运营用户服务实现
type userService struct {
	userRepo systemRepo.UserRepository
}

// NewUserService 创建运营用户服务实例
func NewUserService(userRepo systemRepo.UserRepository) UserService {
	return &userService{
		userRepo: userRepo,
	}
}

// GetList 分页查询用户列表
// merchantID非nil时只返回该商户下的用户
func (s *userService) GetList(page, pageSize int, merchantID *uint64) ([]*systemModel.User, int64, error) {
	return s.userRepo.GetList(page, pageSize, merchantID)
}

// GetByID 查询用户详情
// 商户范围内查不到与不存在同样返回ErrUserNotFound，避免越权探测
func (s *userService) GetByID(merchantID *uint64, id uint64) (*systemModel.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if merchantID != nil && user.MerchantID != *merchantID {
		return nil, ErrUserNotFound
	}

	return user, nil
}
