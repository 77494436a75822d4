/**
 * 模型:订单
 * @author: sun977
 * @date: 2026.03.20
 * @description: 设备订单与商品目录数据模型
 * @func:
 * 	1.Order 订单实体(order_no幂等)
 * 	2.Product 商品目录
 */
package order

import (
	"vendmaster/internal/model/basemodel"
)

// 支付状态常量
const (
	PayStatusUnpaid   = "unpaid"   // 未支付
	PayStatusPaid     = "paid"     // 已支付
	PayStatusRefunded = "refunded" // 已退款
)

// Order 订单实体
// 设备侧按order_no幂等创建，重复上报直接返回已存在记录
type Order struct {
	basemodel.BaseModel
	OrderNo     string            `json:"order_no" gorm:"type:varchar(64);not null;uniqueIndex;comment:订单号"`
	DeviceID    uint64            `json:"device_id" gorm:"not null;index;comment:出货设备ID"`
	MerchantID  uint64            `json:"merchant_id" gorm:"not null;default:0;index;comment:所属商户ID"`
	ProductName string            `json:"product_name" gorm:"type:varchar(128);comment:商品名称"`
	Quantity    int               `json:"quantity" gorm:"not null;default:1;comment:数量"`
	UnitPrice   float64           `json:"unit_price" gorm:"type:decimal(10,2);comment:单价"`
	TotalAmount float64           `json:"total_amount" gorm:"type:decimal(10,2);not null;default:0;comment:订单金额"`
	PayMethod   string            `json:"pay_method" gorm:"type:varchar(32);comment:支付方式"`
	PayStatus   string            `json:"pay_status" gorm:"type:varchar(16);not null;default:unpaid;index;comment:支付状态"`
	IsException bool              `json:"is_exception" gorm:"not null;default:false;comment:是否异常订单"`
	RawPayload  basemodel.JSONMap `json:"raw_payload" gorm:"type:json;comment:设备上报原始内容"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// Product 商品目录
type Product struct {
	basemodel.BaseModel
	Name     string  `json:"name" gorm:"type:varchar(128);not null;comment:商品名称"`
	Price    float64 `json:"price" gorm:"type:decimal(10,2);not null;default:0;comment:售价"`
	IsActive bool    `json:"is_active" gorm:"not null;default:true;comment:是否上架"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "product_catalog"
}

// OrderItem 订单商品项
type OrderItem struct {
	ProductID uint64  `json:"product_id"` // 商品ID
	Name      string  `json:"name"`       // 商品名称
	Quantity  int     `json:"quantity"`   // 数量
	UnitPrice float64 `json:"unit_price"` // 单价
}

// CreateOrderRequest 设备创建订单请求
type CreateOrderRequest struct {
	OrderID       string      `json:"order_id" binding:"required"` // 订单号
	Items         []OrderItem `json:"items"`                       // 商品项
	TotalPrice    float64     `json:"total_price"`                 // 订单金额
	PaymentMethod string      `json:"payment_method"`              // 支付方式
	PaymentStatus string      `json:"payment_status"`              // 支付状态
}

// CreateOrderResponse 设备创建订单响应
type CreateOrderResponse struct {
	OK        bool   `json:"ok"`        // 是否成功
	OrderNo   string `json:"order_no"`  // 订单号
	Duplicate bool   `json:"duplicate"` // 是否重复上报
}
