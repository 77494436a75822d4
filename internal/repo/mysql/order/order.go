/**
 * 订单仓库层:订单数据访问
 * @author: Sun977
 * @date: 2026.03.24
 * @description: 订单数据访问层，专注于数据操作，不包含业务逻辑
 * @func: 订单幂等创建、分页查询、营收统计、商品目录
 */
package order

import (
	"time"

	"gorm.io/gorm"

	orderModel "vendmaster/internal/model/order"
	"vendmaster/internal/pkg/logger"
)

// OrderRepository 订单仓库接口定义 [定义接口层供上层调用，然后底下实现这些接口]
type OrderRepository interface {
	Create(order *orderModel.Order) error
	GetByOrderNo(orderNo string) (*orderModel.Order, error)
	GetList(page, pageSize int, merchantID *uint64, deviceID *uint64, payStatus string) ([]*orderModel.Order, int64, error)
	CountSince(since time.Time, merchantID *uint64) (count int64, amount float64, err error)

	// 商品目录
	ListProducts(onlyActive bool) ([]*orderModel.Product, error)
}

// orderRepository 订单仓库实现
type orderRepository struct {
	db *gorm.DB // 数据库连接
}

// NewOrderRepository 创建订单仓库实例
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{
		db: db,
	}
}

// Create 创建订单（纯数据访问）
// order_no唯一索引兜底幂等，并发重复上报由调用方先查后插+索引双保险
func (r *orderRepository) Create(order *orderModel.Order) error {
	result := r.db.Create(order)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.order.Create", "", map[string]interface{}{
			"operation": "create_order",
			"option":    "orderRepository.Create",
			"func_name": "repo.order.Create",
			"order_no":  order.OrderNo,
			"device_id": order.DeviceID,
		})
		return result.Error
	}

	return nil
}

// GetByOrderNo 根据订单号获取订单
func (r *orderRepository) GetByOrderNo(orderNo string) (*orderModel.Order, error) {
	var order orderModel.Order

	result := r.db.Where("order_no = ?", orderNo).First(&order)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // 返回nil表示未找到，不是错误
		}
		logger.LogError(result.Error, "", 0, "", "repo.order.GetByOrderNo", "", map[string]interface{}{
			"operation": "get_order_by_no",
			"option":    "orderRepository.GetByOrderNo",
			"func_name": "repo.order.GetByOrderNo",
			"order_no":  orderNo,
		})
		return nil, result.Error
	}

	return &order, nil
}

// GetList 分页查询订单列表（分页 + 过滤）
func (r *orderRepository) GetList(page, pageSize int, merchantID *uint64, deviceID *uint64, payStatus string) ([]*orderModel.Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := r.db.Model(&orderModel.Order{})
	if merchantID != nil {
		query = query.Where("merchant_id = ?", *merchantID)
	}
	if deviceID != nil {
		query = query.Where("device_id = ?", *deviceID)
	}
	if payStatus != "" {
		query = query.Where("pay_status = ?", payStatus)
	}

	var total int64
	if result := query.Count(&total); result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.order.GetList", "", map[string]interface{}{
			"operation": "count_orders",
			"option":    "orderRepository.GetList",
			"func_name": "repo.order.GetList",
		})
		return nil, 0, result.Error
	}

	var orders []*orderModel.Order
	result := query.Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&orders)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.order.GetList", "", map[string]interface{}{
			"operation": "list_orders",
			"option":    "orderRepository.GetList",
			"func_name": "repo.order.GetList",
		})
		return nil, 0, result.Error
	}

	return orders, total, nil
}

// CountSince 统计起始时间后的订单数与已支付金额
func (r *orderRepository) CountSince(since time.Time, merchantID *uint64) (int64, float64, error) {
	type revenueRow struct {
		Num    int64   `gorm:"column:num"`
		Amount float64 `gorm:"column:amount"`
	}

	query := r.db.Model(&orderModel.Order{}).Where("created_at >= ?", since)
	if merchantID != nil {
		query = query.Where("merchant_id = ?", *merchantID)
	}

	var row revenueRow
	result := query.Select("COUNT(*) AS num, COALESCE(SUM(CASE WHEN pay_status = 'paid' THEN total_amount ELSE 0 END), 0) AS amount").
		Scan(&row)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.order.CountSince", "", map[string]interface{}{
			"operation": "count_orders_since",
			"option":    "orderRepository.CountSince",
			"func_name": "repo.order.CountSince",
		})
		return 0, 0, result.Error
	}

	return row.Num, row.Amount, nil
}

// ListProducts 查询商品目录
func (r *orderRepository) ListProducts(onlyActive bool) ([]*orderModel.Product, error) {
	query := r.db.Model(&orderModel.Product{})
	if onlyActive {
		query = query.Where("is_active = ?", true)
	}

	var products []*orderModel.Product
	result := query.Order("id ASC").Find(&products)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.order.ListProducts", "", map[string]interface{}{
			"operation": "list_products",
			"option":    "orderRepository.ListProducts",
			"func_name": "repo.order.ListProducts",
		})
		return nil, result.Error
	}

	return products, nil
}
